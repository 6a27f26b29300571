package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/storage"
)

// Publisher delivers domain events. Implementations must not block the
// caller on network I/O.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any)
}

// Recorder receives engine measurements
type Recorder interface {
	OccurrencesGenerated(n int)
	GenerationSkipped()
	AssignmentsCreated(n int)
	AssignmentCompleted()
	OperationFailed(op string, err error)
	ExtenderRun(status storage.RunStatus, d time.Duration, extended, failed int)
}

// Clock returns the current time
type Clock func() time.Time

// Engine generates occurrences and binds them to assignees
type Engine struct {
	logger  *zap.Logger
	store   *storage.Store
	clock   Clock
	events  Publisher
	metrics Recorder
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the engine's time source
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPublisher sets where domain events go
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithRecorder sets where measurements go
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// NewEngine creates a new engine on store
func NewEngine(store *storage.Store, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:  logger.Named("engine"),
		store:   store,
		clock:   func() time.Time { return time.Now().UTC() },
		events:  nopPublisher{},
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's store
func (e *Engine) Store() *storage.Store {
	return e.store
}

// Now returns the engine clock's current time in UTC
func (e *Engine) Now() time.Time {
	return e.clock().UTC()
}

func (e *Engine) fail(op string, err error) error {
	e.metrics.OperationFailed(op, err)
	return err
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) {}

type nopRecorder struct{}

func (nopRecorder) OccurrencesGenerated(int)                               {}
func (nopRecorder) GenerationSkipped()                                     {}
func (nopRecorder) AssignmentsCreated(int)                                 {}
func (nopRecorder) AssignmentCompleted()                                   {}
func (nopRecorder) OperationFailed(string, error)                          {}
func (nopRecorder) ExtenderRun(storage.RunStatus, time.Duration, int, int) {}
