package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/cache"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/events"
	"tindahan/backend/internal/imagestore"
	"tindahan/backend/internal/lock"
	"tindahan/backend/internal/logger"
	"tindahan/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options carries the optional collaborators; nil fields fall back to
// in-process or no-op implementations.
type Options struct {
	Cache       cache.SummaryCache
	Locker      lock.Locker
	Images      imagestore.Store
	Publisher   events.Publisher
	Location    *time.Location
	Now         func() time.Time
	SummaryTTL  time.Duration
	SeedLockTTL time.Duration
}

type Service struct {
	repo        store.Repository
	cache       cache.SummaryCache
	locker      lock.Locker
	images      imagestore.Store
	publisher   events.Publisher
	loc         *time.Location
	now         func() time.Time
	summaryTTL  time.Duration
	seedLockTTL time.Duration
	validate    *validator.Validate
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:        repo,
		cache:       opts.Cache,
		locker:      opts.Locker,
		images:      opts.Images,
		publisher:   opts.Publisher,
		loc:         opts.Location,
		now:         opts.Now,
		summaryTTL:  opts.SummaryTTL,
		seedLockTTL: opts.SeedLockTTL,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.cache == nil {
		s.cache = cache.NoopSummaryCache{}
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.summaryTTL <= 0 {
		s.summaryTTL = 5 * time.Minute
	}
	if s.seedLockTTL <= 0 {
		s.seedLockTTL = 30 * time.Second
	}
	return s
}

// Today is the current business date in the configured timezone.
func (s *Service) Today() time.Time {
	return domain.BusinessDate(s.now(), s.loc)
}

// ResolveDate parses a YYYY-MM-DD business date; blank means today.
func (s *Service) ResolveDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return s.Today(), nil
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperror.NewValidation("date must be formatted YYYY-MM-DD").WithDetail("date", raw)
	}
	return date, nil
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, apperror.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, apperror.NewForbidden("admin role required")
	}
	return actor, nil
}

// check runs the struct's validate tags and reports each failing field.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.NewValidation(err.Error())
	}
	appErr := apperror.NewValidation("request failed validation")
	for _, fe := range fieldErrs {
		appErr.WithDetail(fe.Namespace(), fe.Tag())
	}
	return appErr
}

// translate maps store sentinels onto the API error taxonomy.
func translate(err error, entity string, id any) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}

	var stockErr *store.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		name := stockErr.Name
		if name == "" {
			name = stockErr.Item.String()
		}
		return apperror.NewInsufficientStock(name, stockErr.Available, stockErr.Requested).WithCause(err)
	case errors.Is(err, store.ErrNotFound):
		return apperror.NewNotFound(entity, id).WithCause(err)
	case errors.Is(err, store.ErrInvalidInput):
		return apperror.NewValidation(err.Error()).WithCause(err)
	case errors.Is(err, store.ErrConflict):
		return apperror.NewConflict(err.Error()).WithCause(err)
	case errors.Is(err, store.ErrDuplicate):
		return apperror.NewConflict(fmt.Sprintf("%s already exists", entity)).WithCause(err)
	case errors.Is(err, store.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return apperror.NewTransient(err)
	default:
		return apperror.NewInternal(err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		logger.Warn(ctx, "failed to write audit log", "action", action, "entity", entityType+"/"+entityID, "error", err)
	}
}

// ListAuditLogs returns the given business day's audit trail, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	day, err := s.ResolveDate(date)
	if err != nil {
		return nil, err
	}

	// Business days start at local midnight.
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	logs, err := s.repo.ListAuditLogs(ctx, from, from.AddDate(0, 0, 1), limit)
	return logs, translate(err, "audit log", date)
}
