package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/delivery/http/request"
	"github.com/tomichandesu/research-tool-sub000/internal/delivery/http/response"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/internal/usecase"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// Handler serves the operations API. Any dependency may be nil; the
// endpoints that need it then answer 503.
type Handler struct {
	scheduler usecase.FrontierScheduler
	keywords  usecase.KeywordManager
	outcomes  repository.OutcomeRepository
	logger    *zap.Logger
}

func NewHandler(
	scheduler usecase.FrontierScheduler,
	keywords usecase.KeywordManager,
	outcomes repository.OutcomeRepository,
	l *zap.Logger,
) *Handler {
	return &Handler{
		scheduler: scheduler,
		keywords:  keywords,
		outcomes:  outcomes,
		logger:    logger.OrNop(l).Named("http"),
	}
}

func (h *Handler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	if h.keywords == nil {
		h.writeJSONError(w, "Batch queue is not configured", http.StatusServiceUnavailable)
		return
	}

	var req request.SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		h.writeJSONError(w, "At least one keyword is required", http.StatusBadRequest)
		return
	}

	res, err := h.keywords.Submit(r.Context(), keywords, req.Force)
	if err != nil {
		h.logger.Error("failed to submit keywords", zap.Strings("keywords", keywords), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if len(res.Queued) == 0 {
		h.writeJSON(w, http.StatusConflict, response.SubmitBatchResponse{
			Status:   "rejected",
			Message:  usecase.ErrKeywordRecentlySubmitted.Error(),
			Queued:   []string{},
			Rejected: res.Rejected,
		})
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.SubmitBatchResponse{
		Status:   "success",
		Message:  "Keywords queued for research",
		Queued:   res.Queued,
		Rejected: res.Rejected,
	})
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil && h.keywords == nil {
		h.writeJSONError(w, "Nothing is running in this process", http.StatusServiceUnavailable)
		return
	}

	var resp response.StatusResponse
	if h.scheduler != nil {
		snap := h.scheduler.Snapshot()
		resp.Scheduler = &snap
	}
	if h.keywords != nil {
		n, err := h.keywords.QueueLength(r.Context())
		if err != nil {
			h.logger.Error("failed to read queue length", zap.Error(err))
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		resp.QueueLength = &n
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleTopKeywords(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		h.writeJSONError(w, "Outcome store is not configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultTopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopLimit {
			h.writeJSONError(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		limit = n
	}

	stats, err := h.outcomes.TopKeywords(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load top keywords", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]response.KeywordStatResponse, 0, len(stats))
	for _, s := range stats {
		resp = append(resp, response.KeywordStatResponse{
			Keyword:      s.Keyword,
			Explorations: s.Explorations,
			BestScore:    s.BestScore,
			Matches:      s.Matches,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
