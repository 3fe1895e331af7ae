// Package app owns the per-process state of the budget service: the stream
// cache, the ledger publisher and the repositories handed to domain
// commands. Transports call Service methods and never see the ledger.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/platform/metrics"
	platformotel "github.com/openkfw/trubudget/internal/platform/otel"
	"github.com/openkfw/trubudget/internal/platform/requestctx"
	"github.com/openkfw/trubudget/internal/services/budget/cache"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a Service.
type Options struct {
	// Organization is the organization this node belongs to.
	Organization string
	// Metrics records command outcomes. Nil disables metrics.
	Metrics *metrics.Recorder
	// Env overrides the clock and id source, mainly for tests.
	Env command.Env
	// Tracer overrides the service tracer.
	Tracer trace.Tracer
}

// Service runs budget commands against one ledger.
type Service struct {
	store        ledger.Store
	cache        *cache.Cache
	publisher    *ledger.Publisher
	metrics      *metrics.Recorder
	tracer       trace.Tracer
	env          command.Env
	organization string
}

// New returns a Service over store.
func New(store ledger.Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	organization := strings.TrimSpace(opts.Organization)
	if organization == "" {
		return nil, fmt.Errorf("organization is required")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = platformotel.Tracer()
	}
	recorder := opts.Metrics
	s := &Service{
		store:        store,
		metrics:      recorder,
		tracer:       tracer,
		env:          opts.Env,
		organization: organization,
	}
	s.cache = cache.New(store, cache.WithRefreshHook(recorder.CacheRefreshed))
	s.publisher = ledger.NewPublisher(store, ledger.WithCreateRetryHook(func(string) {
		recorder.StreamCreateRetried()
	}))
	return s, nil
}

// Organization returns the organization this service runs for.
func (s *Service) Organization() string {
	return s.organization
}

// Bootstrap creates the service-wide streams when missing and loads them
// into the cache.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := ledger.EnsureStreams(ctx, s.store, event.StreamKindGlobal, event.GlobalStream); err != nil {
		return err
	}
	if err := ledger.EnsureStreams(ctx, s.store, event.StreamKindUsers, event.UsersStream); err != nil {
		return err
	}
	if err := ledger.EnsureStreams(ctx, s.store, event.StreamKindNotifications, event.NotificationsStream); err != nil {
		return err
	}
	if err := ledger.EnsureStreams(ctx, s.store, event.StreamKindOrganization, event.OrganizationStream(s.organization)); err != nil {
		return err
	}
	if err := s.cache.RefreshAll(ctx, event.GlobalStream, event.UsersStream, event.NotificationsStream); err != nil {
		return apperrors.Wrap(apperrors.CodeLedgerUnavailable, "warm service streams", err)
	}
	log.Printf("ledger streams ready for organization %s", s.organization)
	return nil
}

func (s *Service) commandEnv(ctx context.Context) command.Env {
	env := s.env
	if env.Source == "" {
		env.Source = requestctx.SourceFromContext(ctx)
	}
	return env
}

// execute runs decide, appends the events it produced and returns the new
// state. The batch is checked up front, then events are appended one at a
// time in order; a failure after the first append is reported as a
// non-retryable partial append.
func execute[T any](ctx context.Context, s *Service, name string, actor identity.ServiceUser, decide func(ctx context.Context, env command.Env) (command.Result[T], error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "budget."+name, trace.WithAttributes(
		attribute.String("trubudget.command", name),
		attribute.String("trubudget.actor", actor.ID),
	))
	defer span.End()
	started := time.Now()

	var zero T
	result, err := decide(ctx, s.commandEnv(ctx))
	if err != nil {
		s.finish(span, name, started, err)
		return zero, err
	}
	if err := s.persist(ctx, result.NewEvents); err != nil {
		s.finish(span, name, started, err)
		return zero, err
	}
	span.SetAttributes(attribute.Int("trubudget.events", len(result.NewEvents)))
	s.finish(span, name, started, nil)
	return result.NewState, nil
}

// query runs a read-only command.
func query[T any](ctx context.Context, s *Service, name string, actor identity.ServiceUser, read func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "budget."+name, trace.WithAttributes(
		attribute.String("trubudget.command", name),
		attribute.String("trubudget.actor", actor.ID),
	))
	defer span.End()
	started := time.Now()

	value, err := read(ctx)
	s.finish(span, name, started, err)
	return value, err
}

func (s *Service) finish(span trace.Span, name string, started time.Time, err error) {
	outcome := metrics.OutcomeAccepted
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case apperrors.IsKind(err, apperrors.KindUnexpected):
		outcome = metrics.OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		outcome = metrics.OutcomeRejected
		span.SetAttributes(attribute.String("trubudget.error_code", string(apperrors.GetCode(err))))
	}
	s.metrics.ObserveCommand(name, outcome, time.Since(started))
}

func (s *Service) persist(ctx context.Context, events []event.Event) error {
	if err := ledger.Check(events...); err != nil {
		return err
	}
	touched := map[string]bool{}
	for i, evt := range events {
		item, err := s.publisher.Publish(ctx, evt)
		if err != nil {
			if i == 0 {
				return err
			}
			log.Printf("partial append: %d of %d events stored before %s failed: %v", i, len(events), evt.Type, err)
			return apperrors.NonRetryable(apperrors.Wrap(apperrors.CodePartialAppend,
				fmt.Sprintf("%d of %d events were appended", i, len(events)), err))
		}
		s.metrics.EventAppended(string(evt.Type))
		touched[item.Stream] = true
	}
	// Every event is stored. Reads refresh before use, so a failed refresh
	// here only delays the cache.
	for stream := range touched {
		if err := s.cache.Refresh(ctx, stream); err != nil {
			log.Printf("refresh %s after append: %v", stream, err)
		}
	}
	return nil
}
