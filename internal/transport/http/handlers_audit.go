package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/middleware"
	dErrors "audittrail/pkg/domain-errors"
	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/httputil"
)

// Repository is the slice of audit.Repository the query API reads and prunes.
type Repository interface {
	Search(ctx context.Context, criteria audit.SearchCriteria) (audit.SearchResult, error)
	FindByID(ctx context.Context, id int64) (*audit.Event, error)
	GetStatistics(ctx context.Context) (audit.Statistics, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Handler serves the audit query API. It translates HTTP into repository
// calls and holds no state of its own.
type Handler struct {
	repo    Repository
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type HandlerOption func(*Handler)

func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(repo Repository, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the audit routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/events", h.handleListEvents)
	r.With(middleware.ContentTypeJSON).Post("/audit/events/search", h.handleSearchEvents)
	r.Get("/audit/events/{id}", h.handleGetEvent)
	r.Delete("/audit/events", h.handleDeleteOlderThan)
	r.Get("/audit/statistics", h.handleGetStatistics)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequestFromQuery(r.URL.Query())
	if err == nil {
		err = httputil.PrepareRequest(req)
	}
	if err != nil {
		h.writeError(r.Context(), w, err, "invalid search query")
		return
	}
	h.search(w, r, req)
}

func (h *Handler) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeJSON[SearchRequest](w, r, h.logger)
	if !ok {
		return
	}
	h.search(w, r, req)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, req *SearchRequest) {
	ctx := r.Context()
	criteria, err := req.Criteria()
	if err != nil {
		h.writeError(ctx, w, err, "invalid search criteria")
		return
	}

	result, err := h.repo.Search(ctx, criteria)
	if err != nil {
		h.writeError(ctx, w, err, "failed to search audit events")
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveSearch(result.CurrentCount(), req.Anonymize)
	}

	var transform func(audit.Record) audit.Record
	if req.Anonymize {
		transform = audit.AnonymizeRecord
	}
	httputil.WriteJSON(w, http.StatusOK, result.ToRecord(transform))
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "event id must be a positive integer"), "invalid event id")
		return
	}
	anonymize, err := queryBool(r.URL.Query(), "anonymize")
	if err != nil {
		h.writeError(ctx, w, err, "invalid anonymize flag")
		return
	}

	event, err := h.repo.FindByID(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load audit event")
		return
	}

	rec := event.ToRecord()
	if anonymize {
		rec = audit.AnonymizeRecord(rec)
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// StatisticsResponse is the statistics report with its derived indicators.
type StatisticsResponse struct {
	audit.Statistics
	HighRiskPercentage   float64                 `json:"high_risk_percentage"`
	GrowthPercentage     float64                 `json:"growth_percentage"`
	MostCommonEventType  *audit.EventType        `json:"most_common_event_type"`
	MostActiveUser       *audit.UserActivity     `json:"most_active_user"`
	MostAccessedResource *audit.ResourceActivity `json:"most_accessed_resource"`
}

func newStatisticsResponse(st audit.Statistics) StatisticsResponse {
	resp := StatisticsResponse{
		Statistics:         st,
		HighRiskPercentage: st.HighRiskPercentage(),
		GrowthPercentage:   st.GrowthPercentage(),
	}
	if t, ok := st.MostCommonEventType(); ok {
		resp.MostCommonEventType = &t
	}
	if u, ok := st.MostActiveUser(); ok {
		resp.MostActiveUser = &u
	}
	if res, ok := st.MostAccessedResource(); ok {
		resp.MostAccessedResource = &res
	}
	return resp
}

func (h *Handler) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.repo.GetStatistics(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err, "failed to compute audit statistics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newStatisticsResponse(st))
}

type DeleteResponse struct {
	Deleted   int64  `json:"deleted"`
	OlderThan string `json:"older_than"`
}

// handleDeleteOlderThan removes events stamped before the start of the
// older_than day. Days after today are rejected.
func (h *Handler) handleDeleteOlderThan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("older_than")
	if raw == "" {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeValidation, "older_than is required"), "missing retention cutoff")
		return
	}
	cutoff, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeValidation, "older_than must be YYYY-MM-DD"), "invalid retention cutoff")
		return
	}
	if cutoff.After(h.now().UTC()) {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeValidation, "older_than must not be in the future"), "invalid retention cutoff")
		return
	}

	deleted, err := h.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		h.writeError(ctx, w, err, "failed to delete audit events")
		return
	}
	if h.metrics != nil {
		h.metrics.AddRetentionDeletes(deleted)
	}
	h.logger.InfoContext(ctx, "audit events deleted",
		"request_id", middleware.GetRequestID(ctx),
		"older_than", raw,
		"deleted", deleted,
	)
	httputil.WriteJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted, OlderThan: raw})
}

// writeError logs client errors at warn and server errors at error before responding.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	requestID := middleware.GetRequestID(ctx)
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestID)
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestID)
	}
	httputil.WriteError(w, err)
}
