package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/repositories"
	"alfredoptarigan/cv-matcher/internal/services"
)

type MatchHandler struct {
	service services.MatchService
	worker  services.Worker
	log     *zap.Logger
}

func NewMatchHandler(service services.MatchService, worker services.Worker, log *zap.Logger) *MatchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatchHandler{service: service, worker: worker, log: log}
}

// Register mounts the matching routes on router.
func (h *MatchHandler) Register(router fiber.Router) {
	router.Post("/match", h.HandleMatch)
	router.Get("/match/:cv_id/:job_id", h.HandleGet)
	router.Delete("/match-cache/:cv_id/:job_id", h.HandleInvalidate)
	router.Get("/match-tasks/:task_id", h.HandleTask)
}

// HandleMatch handles POST /match
func (h *MatchHandler) HandleMatch(c *fiber.Ctx) error {
	var req models.MatchRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request payload", "invalid_input")
	}

	req.CVID = strings.TrimSpace(req.CVID)
	req.JobID = strings.TrimSpace(req.JobID)
	if req.CVID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "cv_id is required", "invalid_input")
	}
	if req.JobID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "job_id is required", "invalid_input")
	}
	if req.CVFacts == nil && strings.TrimSpace(req.CVText) == "" && req.CVFactsRef == "" {
		return errorJSON(c, fiber.StatusBadRequest, "one of cv_facts, cv_text or cv_facts_ref is required", "invalid_input")
	}
	if req.Requirements == nil && req.RequirementsRef == "" {
		return errorJSON(c, fiber.StatusBadRequest, "one of job_requirements or job_requirements_ref is required", "invalid_input")
	}

	cmd := services.MatchCommand{
		CVID:            req.CVID,
		JobID:           req.JobID,
		CVText:          req.CVText,
		Facts:           req.CVFacts,
		CVFactsRef:      req.CVFactsRef,
		Requirements:    req.Requirements,
		RequirementsRef: req.RequirementsRef,
		ScoringVersion:  req.ScoringVersion,
	}

	if req.Async {
		if h.worker == nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, "Async matching is not enabled", "")
		}
		taskID, err := h.worker.Enqueue(cmd)
		if err != nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, err.Error(), "")
		}
		return c.Status(fiber.StatusAccepted).JSON(models.AsyncMatchResponse{
			CVID:   req.CVID,
			JobID:  req.JobID,
			TaskID: taskID,
			Status: string(services.TaskQueued),
		})
	}

	outcome, err := h.service.Match(c.UserContext(), cmd)
	if err != nil {
		return h.matchError(c, err)
	}
	return c.JSON(toResponse(outcome))
}

// HandleGet handles GET /match/:cv_id/:job_id
func (h *MatchHandler) HandleGet(c *fiber.Ctx) error {
	recompute := c.QueryBool("recompute", false)

	outcome, err := h.service.Get(c.UserContext(), c.Params("cv_id"), c.Params("job_id"), recompute)
	if err != nil {
		return h.matchError(c, err)
	}
	return c.JSON(toResponse(outcome))
}

// HandleInvalidate handles DELETE /match-cache/:cv_id/:job_id
func (h *MatchHandler) HandleInvalidate(c *fiber.Ctx) error {
	cvID, jobID := c.Params("cv_id"), c.Params("job_id")

	removed, err := h.service.Invalidate(c.UserContext(), cvID, jobID)
	if err != nil {
		return h.matchError(c, err)
	}
	return c.JSON(models.InvalidateResponse{CVID: cvID, JobID: jobID, Removed: removed})
}

// HandleTask handles GET /match-tasks/:task_id
func (h *MatchHandler) HandleTask(c *fiber.Ctx) error {
	if h.worker == nil {
		return errorJSON(c, fiber.StatusNotFound, "Task not found", "")
	}
	task, ok := h.worker.Task(c.Params("task_id"))
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "Task not found", "")
	}
	return c.JSON(task)
}

// matchError maps the failure taxonomy onto HTTP statuses.
func (h *MatchHandler) matchError(c *fiber.Ctx, err error) error {
	kind := services.KindName(err)

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, repositories.ErrCacheMiss):
		return errorJSON(c, fiber.StatusNotFound, "No cached match for this pair", "cache_miss")
	case errors.Is(err, services.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrTimeoutFailure):
		status = fiber.StatusGatewayTimeout
	case errors.Is(err, services.ErrExtractionFailure):
		status = fiber.StatusBadGateway
	case errors.Is(err, services.ErrValidationFailure):
		status = fiber.StatusUnprocessableEntity
	}

	if status == fiber.StatusInternalServerError {
		h.log.Error("match request failed", zap.Error(err))
		return errorJSON(c, status, "Internal server error", kind)
	}
	h.log.Warn("match request rejected", zap.Int("status", status), zap.Error(err))
	return errorJSON(c, status, err.Error(), kind)
}

func toResponse(o *services.MatchOutcome) models.MatchResponse {
	return models.MatchResponse{
		CVID:      o.Entry.CVID,
		JobID:     o.Entry.JobID,
		CacheKey:  o.Entry.Key,
		Cached:    o.Cached,
		CreatedAt: o.Entry.CreatedAt,
		ExpiresAt: o.Entry.ExpiresAt,
		Result:    o.Result,
	}
}

func errorJSON(c *fiber.Ctx, status int, message, kind string) error {
	return c.Status(status).JSON(models.ErrorResponse{Error: message, Kind: kind, Code: status})
}
