package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"alfredoptarigan/cv-matcher/internal/logger"
)

const (
	defaultSkillCollection = "skills"
	defaultMinSimilarity   = 0.55
	indexBatchSize         = 64
)

// SkillIndex keeps one Qdrant point per canonical skill and answers
// nearest-skill queries for requirement text.
type SkillIndex interface {
	SkillNeighbourFinder
	InitCollection(ctx context.Context) error
	IndexSkills(ctx context.Context, entries []SkillEntry) (int, error)
}

// skillVectorStore is the subset of *qdrant.Client the index uses.
type skillVectorStore interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

type skillIndex struct {
	store         skillVectorStore
	embedder      Embedder
	collection    string
	vectorSize    uint64
	minSimilarity float32
	log           *zap.Logger

	group    singleflight.Group
	mu       sync.RWMutex
	vectors  map[string][]float32
	maxCache int
}

func NewSkillIndex(urlStr, apiKey, collection string, vectorSize int, embedder Embedder, log *zap.Logger) (SkillIndex, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   parsed.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return newSkillIndex(client, embedder, collection, vectorSize, log), nil
}

func newSkillIndex(store skillVectorStore, embedder Embedder, collection string, vectorSize int, log *zap.Logger) *skillIndex {
	if collection == "" {
		collection = defaultSkillCollection
	}
	if vectorSize <= 0 {
		vectorSize = 768
	}
	return &skillIndex{
		store:         store,
		embedder:      embedder,
		collection:    collection,
		vectorSize:    uint64(vectorSize),
		minSimilarity: defaultMinSimilarity,
		log:           logger.WithFields(log, zap.String("collection", collection)),
		vectors:       make(map[string][]float32),
		maxCache:      1024,
	}
}

func (s *skillIndex) InitCollection(ctx context.Context) error {
	exists, err := s.store.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		s.log.Debug("skill collection already exists")
		return nil
	}

	err = s.store.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.log.Info("skill collection created")
	return nil
}

// IndexSkills embeds and upserts every entry. Point ids are derived from the
// canonical name so re-indexing overwrites instead of duplicating.
func (s *skillIndex) IndexSkills(ctx context.Context, entries []SkillEntry) (int, error) {
	points := make([]*qdrant.PointStruct, 0, indexBatchSize)
	indexed := 0

	flush := func() error {
		if len(points) == 0 {
			return nil
		}
		if _, err := s.store.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("failed to upsert skills: %w", err)
		}
		indexed += len(points)
		// the store may keep the request, so the next batch gets a fresh slice
		points = make([]*qdrant.PointStruct, 0, indexBatchSize)
		return nil
	}

	for _, entry := range entries {
		vector, err := s.embedder.Embed(ctx, skillDocument(entry))
		if err != nil {
			return indexed, fmt.Errorf("failed to embed skill %q: %w", entry.Name, err)
		}

		aliases := make([]any, len(entry.Aliases))
		for i, a := range entry.Aliases {
			aliases[i] = a
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(skillPointID(entry.Name)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"name":     entry.Name,
				"category": entry.Category,
				"aliases":  aliases,
			}),
		})

		if len(points) == indexBatchSize {
			if err := flush(); err != nil {
				return indexed, err
			}
		}
	}
	if err := flush(); err != nil {
		return indexed, err
	}

	s.log.Info("skills indexed", zap.Int("count", indexed))
	return indexed, nil
}

// Nearest returns canonical skill names whose similarity to text reaches the
// configured minimum, best first.
func (s *skillIndex) Nearest(ctx context.Context, text string, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" || limit <= 0 {
		return nil, nil
	}

	vector, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	points, err := s.store.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query skill index: %w", err)
	}

	names := make([]string, 0, len(points))
	for _, p := range points {
		if p.Score < s.minSimilarity {
			continue
		}
		if v, ok := p.Payload["name"]; ok {
			if name := v.GetStringValue(); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// embed de-duplicates concurrent embeddings of the same text and keeps a
// bounded cache of recent vectors.
func (s *skillIndex) embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.ToLower(text)

	s.mu.RLock()
	if v, ok := s.vectors[key]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.group.Do(key, func() (any, error) {
		vector, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed requirement: %w", err)
		}

		s.mu.Lock()
		if len(s.vectors) >= s.maxCache {
			s.vectors = make(map[string][]float32)
		}
		s.vectors[key] = vector
		s.mu.Unlock()
		return vector, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func skillDocument(entry SkillEntry) string {
	doc := entry.Name
	if entry.Category != "" {
		doc += " (" + entry.Category + ")"
	}
	if len(entry.Aliases) > 0 {
		doc += ": " + strings.Join(entry.Aliases, ", ")
	}
	return doc
}

func skillPointID(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}
