package repositories

import (
	"github.com/google/uuid"

	"alfredoptarigan/cv-matcher/internal/models"
)

func prepareEntry(entry *models.CacheEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.ExpiresAt = entry.ExpiresAt.UTC()
}
