package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"waterlily/internal/platform/metrics"
	"waterlily/internal/profile/models"
	dErrors "waterlily/pkg/domain-errors"
	"waterlily/pkg/platform/sentinel"
	"waterlily/pkg/requestcontext"
)

// Store is the record store. Methods called with a context returned by
// StoreTx.RunInTx take part in that transaction.
type Store interface {
	LockAccount(ctx context.Context, userID int64) error
	MergeAccountNames(ctx context.Context, userID int64, names models.AccountNames) error
	UpsertDemographic(ctx context.Context, d *models.Demographic) error
	UpsertFinancial(ctx context.Context, f *models.Financial) error
	FindResponseID(ctx context.Context, userID int64) (int64, error)
	UpsertResponse(ctx context.Context, r *models.Response) error
	InsertResponse(ctx context.Context, r *models.Response) (int64, error)
	AppendOutbox(ctx context.Context, e *models.OutboxEntry) error
	FindComposite(ctx context.Context, userID int64) (*models.JoinedRow, error)
}

// StoreTx provides the transactional boundary for profile writes.
// Implementations wrap a database transaction or, in-memory, a snapshot.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// ViewCache caches assembled composite views. Get returns sentinel.ErrNotFound
// on a miss.
type ViewCache interface {
	Get(ctx context.Context, userID int64) (*models.CompositeView, error)
	Set(ctx context.Context, userID int64, view *models.CompositeView) error
	Invalidate(ctx context.Context, userID int64) error
}

// Service is the profile upsert engine.
type Service struct {
	store   Store
	tx      StoreTx
	cache   ViewCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	readTimeout time.Duration
	reads       singleflight.Group
	gens        generations
}

// DefaultReadTimeout bounds a shared composite read, which outlives the
// request that started it.
const DefaultReadTimeout = 5 * time.Second

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCache(cache ViewCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

func New(store Store, tx StoreTx, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("profile store is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{
		store:  store,
		tx:     tx,
		logger:      slog.Default(),
		tracer:      otel.Tracer("waterlily/profile"),
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetch returns the composite view for userID. Concurrent fetches for the
// same user share one read.
func (s *Service) Fetch(ctx context.Context, userID int64) (*models.CompositeView, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "profile.Fetch", userID)
	defer span.End()

	view, err := s.fetch(ctx, userID)
	s.finish(span, "fetch", start, err)
	return view, err
}

func (s *Service) fetch(ctx context.Context, userID int64) (*models.CompositeView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if view, ok := s.cached(ctx, userID); ok {
		return view, nil
	}

	// The shared read is detached from any one caller, so a cancelled
	// request does not fail the others waiting on it.
	readCtx := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(readKey(userID), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(readCtx, s.readTimeout)
		defer cancel()

		gen := s.gens.current(userID)
		view, err := s.load(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		s.rememberAt(loadCtx, userID, gen, view)
		return view, nil
	})

	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "profile read cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.CompositeView), nil
	}
}

func readKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// load reads and assembles the view from the store, bypassing the cache.
func (s *Service) load(ctx context.Context, userID int64) (*models.CompositeView, error) {
	row, err := s.store.FindComposite(ctx, userID)
	if err != nil {
		return nil, translate(err, "failed to load profile")
	}
	view, err := Assemble(row)
	if err != nil {
		return nil, err
	}
	if view.Demographic != nil && view.Demographic.RaceEthnicity != nil && !view.Demographic.RaceEthnicity.IsList {
		s.logger.DebugContext(ctx, "race_ethnicity is not an encoded list, returning stored text",
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return view, nil
}

func (s *Service) cached(ctx context.Context, userID int64) (*models.CompositeView, bool) {
	if s.cache == nil {
		return nil, false
	}
	view, err := s.cache.Get(ctx, userID)
	switch {
	case err == nil:
		s.metrics.RecordCacheLookup("hit")
		return view, true
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.RecordCacheLookup("miss")
	default:
		s.metrics.RecordCacheLookup("error")
		s.logger.WarnContext(ctx, "profile cache read failed",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil, false
}

func (s *Service) remember(ctx context.Context, userID int64, view *models.CompositeView) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, userID, view); err != nil {
		s.logger.WarnContext(ctx, "profile cache write failed",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "profile cache invalidation failed",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) startSpan(ctx context.Context, name string, userID int64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("user.id", userID)))
}

func (s *Service) finish(span trace.Span, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.ObserveProfileOperation(operation, outcome, time.Since(start))
}

func requireUser(userID int64) error {
	if userID <= 0 {
		return dErrors.New(dErrors.CodeUnauthorized, "missing user identity")
	}
	return nil
}

// translate maps store errors onto the service's error kinds. Domain errors
// pass through; anything else from storage is a persistence failure.
func translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeAlreadySubmitted, "Response already submitted")
	default:
		return dErrors.Wrap(err, dErrors.CodePersistence, msg)
	}
}
