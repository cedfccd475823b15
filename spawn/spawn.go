// Package spawn provides the scheduling adapter session.Fork's callers use
// to run a session's dual side concurrently (spec.md §4.5): sessio itself
// never starts a goroutine except through this interface, so embedding
// programs can swap in their own pool, tracer, or backpressure policy.
package spawn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("github.com/chantype/sessio/spawn")

// Spawner schedules a task for eventual, possibly concurrent, completion.
// Implementations must not run task synchronously on the caller's
// goroutine unless documented otherwise (GoSpawner never does; a
// single-threaded test double might).
type Spawner interface {
	Spawn(task func())
}

// GoSpawner runs every task on its own goroutine, unbounded. It is the
// default: grounded on the teacher's direct `go h.runEvictor()` /
// `go c.loop()` fire-and-forget idiom in internal/domain/registry.
type GoSpawner struct{}

func (GoSpawner) Spawn(task func()) {
	go func() {
		_, span := tracer.Start(context.Background(), "sessio.spawn")
		defer span.End()
		task()
	}()
}

// BoundedSpawner caps the number of in-flight tasks with a weighted
// semaphore and trips a circuit breaker if tasks panic repeatedly, so a
// systematically broken session (e.g. a caller that always panics
// mid-protocol) stops being rescheduled instead of burning the pool.
type BoundedSpawner struct {
	sem     *semaphore.Weighted
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// Option configures a BoundedSpawner, following the teacher's functional
// options convention (internal/domain/registry/options.go).
type Option func(*boundedConfig)

type boundedConfig struct {
	logger             *slog.Logger
	maxConsecutiveFail uint32
}

// WithLogger overrides the slog.Logger used for breaker state transitions
// and dropped tasks. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *boundedConfig) { c.logger = l }
}

// WithMaxConsecutiveFailures sets how many consecutive task panics trip
// the breaker open. Defaults to 5.
func WithMaxConsecutiveFailures(n uint32) Option {
	return func(c *boundedConfig) { c.maxConsecutiveFail = n }
}

// NewBoundedSpawner builds a Spawner allowing at most maxConcurrent tasks
// in flight at once.
func NewBoundedSpawner(maxConcurrent int64, opts ...Option) *BoundedSpawner {
	cfg := boundedConfig{
		logger:             slog.Default(),
		maxConsecutiveFail: 5,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	settings := gobreaker.Settings{
		Name: "spawn.BoundedSpawner",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.maxConsecutiveFail
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.logger.Warn("spawn: breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &BoundedSpawner{
		sem:     semaphore.NewWeighted(maxConcurrent),
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  cfg.logger,
	}
}

// Spawn blocks until a slot is free, then runs task on its own goroutine.
// A panicking task is recovered and reported to the breaker so enough
// consecutive panics trip it; once open, Spawn drops new tasks instead of
// scheduling them. The breaker's pass/fail verdict can only be known after
// task finishes, so unlike a typical gobreaker.Execute call the result is
// reported from inside the spawned goroutine, not from Spawn itself.
func (b *BoundedSpawner) Spawn(task func()) {
	if b.breaker.State() == gobreaker.StateOpen {
		b.logger.Warn("spawn: breaker open, task not scheduled")
		return
	}

	ctx := context.Background()
	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.logger.Error("spawn: acquire failed, dropping task", slog.Any("error", err))
		return
	}

	go func() {
		defer b.sem.Release(1)
		if _, err := b.breaker.Execute(func() (any, error) {
			return nil, b.run(task)
		}); err != nil {
			b.logger.Error("spawn: task failed", slog.Any("error", err))
		}
	}()
}

// run invokes task, converting a panic into an error so the breaker can
// count it as a failure without the panic itself crossing back out of run.
func (b *BoundedSpawner) run(task func()) (err error) {
	_, span := tracer.Start(context.Background(), "sessio.spawn")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("spawn: task panicked: %v", r)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	task()
	return nil
}
