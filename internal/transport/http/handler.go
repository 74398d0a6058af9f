package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"embedding-pipeline/internal/entity"
	"embedding-pipeline/internal/repository/postgresql"
	"embedding-pipeline/internal/service"
)

type Handler struct {
	jobSvc    *service.JobService
	searchSvc *service.SearchService
}

func NewHandler(jobSvc *service.JobService, searchSvc *service.SearchService) *Handler {
	return &Handler{jobSvc: jobSvc, searchSvc: searchSvc}
}

type enqueueJobDTO struct {
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	Text       string `json:"text"`
	Priority   *int   `json:"priority,omitempty"` // higher runs first (nil => 1)
}

type enqueueJobResp struct {
	ID string `json:"id"`
}

type jobResp struct {
	ID          string  `json:"id"`
	EntityID    string  `json:"entity_id"`
	EntityKind  string  `json:"entity_kind"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	Attempts    int     `json:"attempts"`
	MaxAttempts int     `json:"max_attempts"`
	Error       *string `json:"error_message,omitempty"`
	ScheduledAt string  `json:"scheduled_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type entityStatusResp struct {
	EntityID string  `json:"entity_id"`
	Status   string  `json:"status"`
	Error    *string `json:"error_message,omitempty"`
}

type searchDTO struct {
	Vector    []float32 `json:"vector"`
	Threshold *float64  `json:"threshold,omitempty"`
	TopN      int       `json:"top_n,omitempty"`
}

// EnqueueJob godoc
// @Summary Enqueue a text-processing job
// @Description Records the job (pending, or skipped when the text fails the length pre-check) and dispatches it for background processing. Fire-and-forget: nothing blocks on completion.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body enqueueJobDTO true "job payload (entity_kind: journal-text | reference-fragment)"
// @Success 201 {object} enqueueJobResp
// @Failure 400 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs [post]
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var dto enqueueJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	priority := 1
	if dto.Priority != nil {
		priority = *dto.Priority
	}

	id, err := h.jobSvc.EnqueueJob(r.Context(), service.EnqueueRequest{
		EntityID:   dto.EntityID,
		EntityKind: entity.EntityKind(dto.EntityKind),
		Text:       dto.Text,
		Priority:   priority,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateActiveJob):
			writeErr(w, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidEntity):
			writeErr(w, http.StatusBadRequest, err.Error())
		default:
			writeErr(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, enqueueJobResp{ID: id.String()})
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toJobResp(j))
}

// GetEntityStatus godoc
// @Summary Get processing status for an entity
// @Description Reports the entity's most recent job state.
// @Tags entities
// @Produce json
// @Param entityID path string true "entity id"
// @Success 200 {object} entityStatusResp
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /entities/{entityID}/status [get]
func (h *Handler) GetEntityStatus(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	j, err := h.jobSvc.GetEntityStatus(r.Context(), entityID)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "no job for entity")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entityStatusResp{
		EntityID: entityID,
		Status:   string(j.Status),
		Error:    j.ErrorMessage,
	})
}

// GetEntityThemes godoc
// @Summary List theme links for an entity
// @Description An entity that is not tagged yet returns an empty list, not an error.
// @Tags themes
// @Produce json
// @Param entityID path string true "entity id"
// @Success 200 {array} entity.EntityThemeLink
// @Router /entities/{entityID}/themes [get]
func (h *Handler) GetEntityThemes(w http.ResponseWriter, r *http.Request) {
	links, err := h.searchSvc.ThemesForEntity(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// GetThemeEntities godoc
// @Summary List entities linked to a theme
// @Tags themes
// @Produce json
// @Param code path string true "theme code"
// @Param threshold query number false "minimum similarity (threshold mode)"
// @Param top_n query int false "result count (top-N mode, default 10)"
// @Success 200 {array} entity.ScoredEntity
// @Failure 400 {object} apiError
// @Router /themes/{code}/entities [get]
func (h *Handler) GetThemeEntities(w http.ResponseWriter, r *http.Request) {
	threshold, topN, err := rankedParams(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := h.searchSvc.EntitiesForTheme(r.Context(), chi.URLParam(r, "code"), threshold, topN)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// SearchSimilar godoc
// @Summary Rank entities by vector similarity
// @Tags search
// @Accept json
// @Produce json
// @Param request body searchDTO true "query vector plus threshold or top_n"
// @Success 200 {array} entity.ScoredEntity
// @Failure 400 {object} apiError
// @Router /search [post]
func (h *Handler) SearchSimilar(w http.ResponseWriter, r *http.Request) {
	var dto searchDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(dto.Vector) == 0 {
		writeErr(w, http.StatusBadRequest, "vector is required")
		return
	}

	hits, err := h.searchSvc.SearchSimilarEntities(r.Context(), dto.Vector, dto.Threshold, dto.TopN)
	if err != nil {
		if errors.Is(err, postgresql.ErrDimensionMismatch) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func rankedParams(r *http.Request) (*float64, int, error) {
	var threshold *float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, 0, errors.New("invalid threshold")
		}
		threshold = &v
	}

	topN := 0
	if raw := r.URL.Query().Get("top_n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, 0, errors.New("invalid top_n")
		}
		topN = v
	}
	return threshold, topN, nil
}

func toJobResp(j *entity.Job) jobResp {
	resp := jobResp{
		ID:          j.ID.String(),
		EntityID:    j.EntityID,
		EntityKind:  string(j.EntityKind),
		Status:      string(j.Status),
		Priority:    j.Priority,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Error:       j.ErrorMessage,
		ScheduledAt: j.ScheduledAt.Format(time.RFC3339),
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		s := j.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
