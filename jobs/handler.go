package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"

	"github.com/pharmastats/pharmastats/internal/platform/httpx"
)

// Enqueuer submits admin-triggered tasks; *Client satisfies it.
type Enqueuer interface {
	EnqueueViewsRefresh(ctx context.Context, payload ViewsRefreshPayload) (*asynq.TaskInfo, error)
	EnqueueCacheWarmup(ctx context.Context, scope string) (*asynq.TaskInfo, error)
}

// QueueInspector reports queue state; *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes admin endpoints for the KPI background jobs.
type Handler struct {
	enqueuer  Enqueuer
	inspector QueueInspector
	logger    *slog.Logger
	now       func() time.Time
	// warmupOff, when set, is reported instead of enqueuing a warmup.
	warmupOff string
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithoutWarmup answers warmup requests with a conflict carrying reason.
func WithoutWarmup(reason string) HandlerOption {
	return func(h *Handler) { h.warmupOff = reason }
}

// NewHandler constructs an HTTP handler for jobs endpoints. The inspector may be nil.
func NewHandler(enqueuer Enqueuer, inspector QueueInspector, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{enqueuer: enqueuer, inspector: inspector, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/queue", h.queue)
	r.Post("/refresh-views", h.refreshViews)
	r.Post("/warmup", h.warmup)
}

type refreshRequest struct {
	Views       []string `json:"views,omitempty"`
	RequestedBy string   `json:"requestedBy,omitempty"`
}

type enqueuedResponse struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
	Type   string `json:"type"`
}

type queueResponse struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Failed    int    `json:"failedToday"`
	Paused    bool   `json:"paused"`
}

func (h *Handler) refreshViews(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := httpx.DecodeOptionalJSON(w, r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	for _, view := range body.Views {
		if strings.TrimSpace(view) == "" {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
	}
	info, err := h.enqueuer.EnqueueViewsRefresh(r.Context(), ViewsRefreshPayload{
		Views:       body.Views,
		RequestedBy: body.RequestedBy,
		RequestedAt: h.now(),
	})
	if err != nil {
		h.enqueueFailed(w, r, TaskViewsRefresh, err)
		return
	}
	h.logger.Info("views refresh enqueued", slog.String("task_id", info.ID), slog.Any("views", body.Views))
	httpx.JSON(w, http.StatusAccepted, enqueuedResponse{TaskID: info.ID, Queue: info.Queue, Type: TaskViewsRefresh})
}

func (h *Handler) warmup(w http.ResponseWriter, r *http.Request) {
	if h.warmupOff != "" {
		httpx.Problem(w, http.StatusConflict, "Warmup Unavailable", h.warmupOff)
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = ScopeMonth
	}
	if scope != ScopeMonth && scope != ScopeRolling {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	info, err := h.enqueuer.EnqueueCacheWarmup(r.Context(), scope)
	if err != nil {
		h.enqueueFailed(w, r, TaskCacheWarmup, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueuedResponse{TaskID: info.ID, Queue: info.Queue, Type: TaskCacheWarmup})
}

func (h *Handler) enqueueFailed(w http.ResponseWriter, r *http.Request, task string, err error) {
	h.logger.Error("enqueue task",
		slog.String("task", task),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("error", err))
	httpx.RespondError(w, httpx.ErrUnavailable)
}

func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueResponse{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	resp := queueResponse{Queue: QueueDefault}
	if info != nil {
		resp = queueResponse{
			Queue:     info.Queue,
			Size:      info.Size,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Failed:    info.Failed,
			Paused:    info.Paused,
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}
