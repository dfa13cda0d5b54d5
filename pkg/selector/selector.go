package selector

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

// DefaultClosingTimeout is how long an upstream stays OPEN before it may be probed.
const DefaultClosingTimeout = 30 * time.Second

// ErrNoUpstreams is passed to Choose callbacks when no upstream can be selected.
var ErrNoUpstreams = errors.New("no upstreams available")

// Config holds the construction parameters of an Engine. Zero fields take
// their defaults.
type Config[T any] struct {
	// Scorer rates upstreams. Defaults to RoundRobin.
	Scorer Scorer[T]
	// ClosingTimeout defaults to DefaultClosingTimeout when not positive.
	ClosingTimeout time.Duration
	// FailureStrategy defaults to TripOnFailure.
	FailureStrategy FailureStrategy[T]
	// Equal identifies targets for Remove. Defaults to upstream.DeepEqual.
	Equal        upstream.EqualFunc[T]
	Clock        clockwork.Clock
	Logger       *slog.Logger
	OnTransition func(Transition[T])
}

// Transition describes a breaker state change of one upstream.
type Transition[T any] struct {
	Target T
	From   circuitbreaker.State
	To     circuitbreaker.State
	At     time.Time
}

// Selection is what a successful Choose hands to its callback.
type Selection[T any] struct {
	Target   T
	Index    int
	Fail     FailureHandle
	Stats    upstream.Stats
	Upstream *upstream.Upstream[T]
}

// Engine picks one upstream per call to Choose and drives the breakers of the
// upstreams it scans.
//
// Engine is not safe for concurrent use. Every call, including the
// FailureHandles it returns, must be serialised by the caller.
type Engine[T any] struct {
	registry       *upstream.Registry[T]
	scorer         Scorer[T]
	closingTimeout time.Duration
	failure        FailureStrategy[T]
	clock          clockwork.Clock
	logger         *slog.Logger
	onTransition   func(Transition[T])
}

func New[T any](cfg Config[T]) *Engine[T] {
	e := &Engine[T]{
		registry:       upstream.NewRegistry(cfg.Equal),
		scorer:         cfg.Scorer,
		closingTimeout: cfg.ClosingTimeout,
		failure:        cfg.FailureStrategy,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		onTransition:   cfg.OnTransition,
	}

	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.scorer == nil {
		e.scorer = RoundRobin[T]()
	}
	if e.closingTimeout <= 0 {
		e.closingTimeout = DefaultClosingTimeout
	}
	if e.failure == nil {
		e.failure = TripOnFailure[T](e.clock)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	return e
}

func (e *Engine[T]) Add(target T) {
	e.registry.Add(target, e.clock.Now())
}

func (e *Engine[T]) Remove(target T) {
	e.registry.Remove(target)
}

func (e *Engine[T]) RemoveBy(match func(T) bool) {
	e.registry.RemoveBy(match)
}

// ChooseAll visits every upstream of this engine that is OPEN or HALF-OPEN.
func (e *Engine[T]) ChooseAll(visit func(u *upstream.Upstream[T], index int)) {
	e.registry.ChooseAll(visit)
}

func (e *Engine[T]) Registry() *upstream.Registry[T] {
	return e.registry
}

func (e *Engine[T]) ClosingTimeout() time.Duration {
	return e.closingTimeout
}

// Choose scans every upstream in insertion order, lets expired OPEN breakers
// go HALF-OPEN, scores each upstream and opens those scoring zero or less.
// The first upstream with the highest positive score that is not OPEN wins.
//
// fn is called exactly once: with the winner, or with ErrNoUpstreams. A
// HALF-OPEN winner is closed after fn returns unless fn reported a failure.
func (e *Engine[T]) Choose(fn func(sel Selection[T], err error)) {
	best := math.Inf(-1)
	winner := -1

	for i := 0; i < e.registry.Len(); i++ {
		u := e.registry.At(i)

		if u.Status() == circuitbreaker.StateOpen && u.Probe(e.clock.Now(), e.closingTimeout) {
			e.transitioned(u, circuitbreaker.StateOpen)
		}

		score := e.scorer.Score(u, i, e.registry)
		if score <= 0 {
			from := u.Status()
			u.Trip(e.clock.Now())
			e.transitioned(u, from)
		}

		if score > best && u.Status() != circuitbreaker.StateOpen {
			best = score
			winner = i
		}
	}

	if best <= 0 {
		e.logger.Debug("No upstream available", slog.Int("upstreams", e.registry.Len()))
		fn(Selection[T]{}, ErrNoUpstreams)
		return
	}

	u := e.registry.At(winner)
	e.registry.MarkChosen(winner, e.clock.Now())

	fn(Selection[T]{
		Target:   u.Target(),
		Index:    winner,
		Fail:     e.failureHandle(u),
		Stats:    u.Stats(),
		Upstream: u,
	}, nil)

	if u.Confirm(e.clock.Now()) {
		e.transitioned(u, circuitbreaker.StateHalfOpen)
	}
}

// Pick is Choose in return-value form.
func (e *Engine[T]) Pick() (Selection[T], error) {
	var (
		sel Selection[T]
		err error
	)

	e.Choose(func(s Selection[T], chooseErr error) {
		sel, err = s, chooseErr
	})

	return sel, err
}

func (e *Engine[T]) failureHandle(u *upstream.Upstream[T]) FailureHandle {
	handle := e.failure(u)

	return func() {
		from := u.Status()
		handle()
		e.transitioned(u, from)
	}
}

// transitioned reports a state change of u away from from. Re-trips of an
// already OPEN breaker refresh its timestamp but are not reported.
func (e *Engine[T]) transitioned(u *upstream.Upstream[T], from circuitbreaker.State) {
	to := u.Status()
	if from == to {
		return
	}

	e.logger.Debug("Upstream breaker transition",
		slog.Any("target", u.Target()),
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	if e.onTransition != nil {
		e.onTransition(Transition[T]{
			Target: u.Target(),
			From:   from,
			To:     to,
			At:     u.StatusTimestamp(),
		})
	}
}
