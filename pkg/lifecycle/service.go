package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

const tracerName = "github.com/StricklySoft/identity-gateway/pkg/lifecycle"

// Hook runs during a lifecycle transition.
type Hook func(ctx context.Context) error

// StateChangeHandler observes every successful transition.
type StateChangeHandler func(old, new State)

// Info is a snapshot of a service for status endpoints.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service tracks the process state and runs start and stop hooks in
// registration order. It is safe for concurrent use.
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger

	onStart  []Hook
	onStop   []Hook
	handlers []StateChangeHandler
}

// Option configures a [Service].
type Option func(*Service)

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithOnStart appends a start hook.
func WithOnStart(h Hook) Option {
	return func(s *Service) { s.onStart = append(s.onStart, h) }
}

// WithOnStop appends a stop hook. Stop hooks run in reverse registration
// order, so resources are released in the opposite order they were
// acquired.
func WithOnStop(h Hook) Option {
	return func(s *Service) { s.onStop = append(s.onStop, h) }
}

// OnStateChange registers a transition observer. Observers run under the
// state lock and must not call back into the service.
func OnStateChange(h StateChangeHandler) Option {
	return func(s *Service) { s.handlers = append(s.handlers, h) }
}

// NewService returns a service in [StateUnknown].
func NewService(name, version string, opts ...Option) *Service {
	s := &Service{
		name:    name,
		version: version,
		state:   StateUnknown,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a point-in-time snapshot. Uptime is only set while running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns nil while running and a [sserr.CodeUnavailable] error
// otherwise.
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable, "lifecycle: service is not running, current state is %q", state)
	}
	return nil
}

func (s *Service) setState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return sserr.Newf(sserr.CodeValidationState,
			"lifecycle: invalid state transition from %q to %q", old, new)
	}
	s.state = new
	switch new {
	case StateRunning:
		now := time.Now().UTC()
		s.startedAt = &now
	case StateStopped, StateFailed:
		s.startedAt = nil
	}

	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r, "old_state", string(old), "new_state", string(new))
				}
			}()
			h(old, new)
		}()
	}
	return nil
}

// Fail moves the service to [StateFailed] after logging err.
func (s *Service) Fail(ctx context.Context, err error) {
	s.logger.ErrorContext(ctx, "lifecycle: service failed", "service", s.name, "error", err)
	_ = s.setState(StateFailed)
}

// Start runs the start hooks and moves the service to [StateRunning]. The
// first failing hook moves it to [StateFailed]; its error is returned
// unchanged when it already carries a code, so callers can tell a
// configuration problem from an unreachable dependency.
func (s *Service) Start(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer func() { finishSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution")
	}
	if err := s.setState(StateStarting); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: starting service", "service", s.name, "version", s.version)

	for i, hook := range s.onStart {
		if err := hook(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "hook", i, "error", err)
			_ = s.setState(StateFailed)
			return hookError(err, "lifecycle: start hook failed")
		}
	}

	if err := s.setState(StateRunning); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	return nil
}

// Stop runs the stop hooks and moves the service to [StateStopped]. It is
// a no-op in a terminal state. Every stop hook runs even if an earlier one
// fails; the first error is returned and the service ends in
// [StateFailed].
func (s *Service) Stop(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer func() { finishSpan(span, err) }()

	if s.State().IsTerminal() {
		return nil
	}
	if err := s.setState(StateStopping); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	var first error
	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "hook", i, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		_ = s.setState(StateFailed)
		return hookError(first, "lifecycle: stop hook failed")
	}

	if err := s.setState(StateStopped); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	return nil
}

func hookError(err error, message string) error {
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return sserr.Wrap(err, sserr.CodeInternal, message)
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("service.name", s.name)),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
