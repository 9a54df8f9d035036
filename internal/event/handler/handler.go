// Package handler exposes the audit event HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"audittrail/internal/event/models"
	"audittrail/internal/event/store"
	"audittrail/internal/identity"
	"audittrail/internal/platform/middleware"
	"audittrail/internal/tenancy"
	"audittrail/pkg/domain"
	dErrors "audittrail/pkg/domain-errors"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/requestcontext"
)

// maxIngestBodyBytes caps the ingest request body. Payloads are JSON
// documents, not blobs.
const maxIngestBodyBytes = 1 << 20

// Service defines the event operations the HTTP layer delegates to.
type Service interface {
	Ingest(ctx context.Context, tc tenancy.Context, draft *models.Draft) (*models.Event, bool, error)
	GetEvent(ctx context.Context, tc tenancy.Context, id domain.EventID) (*models.Event, error)
	TimelineByEntity(ctx context.Context, tc tenancy.Context, kind, id string, page models.Page) (*models.Timeline, error)
	ListEvents(ctx context.Context, tc tenancy.Context, filter store.ListFilter, page models.Page) (*models.Timeline, error)
}

// Handler handles the event ingestion and timeline endpoints.
type Handler struct {
	logger   *slog.Logger
	events   Service
	verifier identity.TenantVerifier
}

// New creates a new event Handler.
func New(events Service, logger *slog.Logger, verifier identity.TenantVerifier) *Handler {
	return &Handler{
		logger:   logger,
		events:   events,
		verifier: verifier,
	}
}

// Register registers the event routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	eventRouter := chi.NewRouter()
	eventRouter.Use(middleware.Recovery(h.logger))
	eventRouter.Use(middleware.RequestID)
	eventRouter.Use(middleware.Logger(h.logger))
	eventRouter.Use(middleware.Timeout(30 * time.Second))
	eventRouter.Use(middleware.ContentTypeJSON)
	eventRouter.Use(middleware.RequireTenant(h.verifier, h.logger))
	eventRouter.Post("/v1/events", h.handleIngest)
	eventRouter.Get("/v1/events", h.handleList)
	eventRouter.Get("/v1/events/{id}", h.handleGet)
	eventRouter.Get("/v1/timeline", h.handleTimeline)

	r.Mount("/", eventRouter)
}

// tenant pulls the authenticated tenant scope set by RequireTenant. A
// missing scope means the route was mounted without the middleware.
func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (tenancy.Context, bool) {
	tc, ok := middleware.TenantContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "tenant scope missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return tenancy.Context{}, false
	}
	return tc, true
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := h.tenant(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid ingest request body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "request body exceeds the ingest limit"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, created, err := h.events.Ingest(ctx, tc, req.toDraft())
	if err != nil {
		h.writeServiceError(w, r, "failed to ingest event", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toEventResponse(event))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := h.tenant(w, r)
	if !ok {
		return
	}

	id, err := domain.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	event, err := h.events.GetEvent(ctx, tc, id)
	if err != nil {
		h.writeServiceError(w, r, "failed to load event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := h.tenant(w, r)
	if !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	timeline, err := h.events.ListEvents(ctx, tc, filter, page)
	if err != nil {
		h.writeServiceError(w, r, "failed to list events", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTimelineResponse(timeline))
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := h.tenant(w, r)
	if !ok {
		return
	}

	kind, id, err := parseEntityParam(r.URL.Query().Get("entity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	timeline, err := h.events.TimelineByEntity(ctx, tc, kind, id, page)
	if err != nil {
		h.writeServiceError(w, r, "failed to query timeline", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTimelineResponse(timeline))
}

// parseEntityParam splits the entity query parameter, formatted "kind:id".
// The id half may itself contain colons.
func parseEntityParam(raw string) (kind, id string, err error) {
	if raw == "" {
		return "", "", dErrors.New(dErrors.CodeBadRequest, "entity query parameter is required")
	}
	kind, id, ok := strings.Cut(raw, ":")
	if !ok || kind == "" || id == "" {
		return "", "", dErrors.New(dErrors.CodeBadRequest, "entity must be formatted kind:id")
	}
	return kind, id, nil
}

func parseListFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Type:    q.Get("type"),
		ActorID: q.Get("actor_id"),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.ListFilter{}, dErrors.New(dErrors.CodeBadRequest, "from must be an RFC 3339 timestamp")
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.ListFilter{}, dErrors.New(dErrors.CodeBadRequest, "to must be an RFC 3339 timestamp")
		}
		filter.To = &t
	}
	return filter, nil
}

func parsePage(r *http.Request) (models.Page, error) {
	q := r.URL.Query()
	page := models.Page{Cursor: q.Get("cursor")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return models.Page{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		page.Limit = limit
	}
	return page, nil
}

// writeServiceError logs with request correlation and translates the domain
// error. Unexpected codes are logged at error level; client mistakes at warn.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	code := dErrors.GetCode(err)
	switch code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable, dErrors.CodeIntegrityViolation:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	default:
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
