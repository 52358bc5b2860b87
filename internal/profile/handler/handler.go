package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"waterlily/internal/platform/metrics"
	"waterlily/internal/platform/middleware"
	"waterlily/internal/profile/models"
	dErrors "waterlily/pkg/domain-errors"
	"waterlily/pkg/platform/httputil"
	"waterlily/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Service defines the profile operations served over HTTP.
type Service interface {
	Upsert(ctx context.Context, userID int64, payload *models.ProfilePayload) (*models.CompositeView, bool, error)
	Fetch(ctx context.Context, userID int64) (*models.CompositeView, error)
	RegisterSubmission(ctx context.Context, userID int64) (int64, error)
}

// Handler serves the profile and survey endpoints.
type Handler struct {
	logger         *slog.Logger
	profile        Service
	metrics        *metrics.Metrics
	jwtValidator   middleware.JWTValidator
	requestTimeout time.Duration
	debugErrors    bool
}

type Option func(*Handler)

// WithRequestTimeout bounds each request, including its transaction.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// WithDebugErrors exposes underlying causes and driver codes in error bodies.
func WithDebugErrors(enabled bool) Option {
	return func(h *Handler) { h.debugErrors = enabled }
}

func New(profile Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		logger:         logger,
		profile:        profile,
		metrics:        metrics,
		jwtValidator:   jwtValidator,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SubmissionResponse is the body returned for a registered submission.
type SubmissionResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// Register registers the profile routes with the chi router. The /survey
// paths are kept for existing clients.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(h.requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		r.Get("/profile", h.HandleFetch)
		r.Post("/profile", h.HandleUpsert)
		r.Post("/submission", h.HandleRegisterSubmission)

		r.Get("/survey/complete", h.HandleFetch)
		r.Post("/survey/complete", h.HandleUpsert)
		r.Post("/survey/submit", h.HandleRegisterSubmission)
	})
}

// HandleFetch returns the caller's composite profile.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	view, err := h.profile.Fetch(ctx, userID)
	if err != nil {
		h.writeServiceError(w, r, "failed to fetch profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleUpsert applies a partial survey payload. It answers 201 when the
// request created the user's response row and 200 when it refreshed it.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	var payload models.ProfilePayload
	if err := decodeBody(w, r, &payload); err != nil {
		h.logger.WarnContext(ctx, "invalid profile payload",
			"request_id", requestID,
			"user_id", userID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err, h.debugErrors)
		return
	}

	view, created, err := h.profile.Upsert(ctx, userID, &payload)
	if err != nil {
		h.writeServiceError(w, r, "failed to save profile", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, view)
}

// HandleRegisterSubmission marks the survey as submitted without answers.
func (h *Handler) HandleRegisterSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	id, err := h.profile.RegisterSubmission(ctx, userID)
	if err != nil {
		h.writeServiceError(w, r, "failed to submit response", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SubmissionResponse{
		Message: "Response submitted successfully",
		ID:      id,
	})
}

func (h *Handler) requireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID <= 0 {
		// RequireAuth is mounted on every route, so this is a wiring bug.
		h.logger.ErrorContext(ctx, "user id missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"), false)
		return 0, false
	}
	return userID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"error", err.Error(),
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err, h.debugErrors)
}

// decodeBody reads one JSON object. An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return dErrors.Wrap(err, dErrors.CodeMalformedInput, "field "+typeErr.Field+" has the wrong type")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return dErrors.Wrap(err, dErrors.CodeMalformedInput, "invalid request body")
	case errors.As(err, &maxErr):
		return dErrors.Wrap(err, dErrors.CodeMalformedInput, "request body too large")
	default:
		// Field decoders report their own constraint, e.g. race_ethnicity.
		return dErrors.Wrap(err, dErrors.CodeMalformedInput, err.Error())
	}
}
