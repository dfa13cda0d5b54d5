package loadbalancer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/upstream-selector/internal/backend"
	"github.com/angeloszaimis/upstream-selector/internal/scoring"
	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
	"github.com/angeloszaimis/upstream-selector/pkg/selector"
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

const selectionsStat = "selections"

type Config struct {
	Scorer         string
	ClosingTimeout time.Duration
	Clock          clockwork.Clock
	Logger         *slog.Logger
	// OnTransition runs with the load balancer's lock held, from Serve and
	// from Reservation.Fail. It must not call back into the LoadBalancer;
	// Upstreams or Unhealthy would deadlock.
	OnTransition func(selector.Transition[string])
	// OnAdded runs once for every newly registered target, without the lock.
	OnAdded func(target string)
}

// LoadBalancer serialises access to a selector engine keyed by backend URL.
// The engine is only touched while mutex is held; backends has its own lock
// because scorers look backends up in the middle of a scan.
type LoadBalancer struct {
	engine     *selector.Engine[string]
	scorer     string
	keyed      scoring.Keyed
	onAdded    func(target string)
	mutex      sync.Mutex
	backendsMu sync.RWMutex
	backends   map[string]*backend.Backend
}

// Reservation is a backend picked for one request.
type Reservation struct {
	Target  string
	Backend *backend.Backend
	// Fail opens the backend's breaker. Safe to call from any goroutine.
	Fail func()
}

// Status is a point-in-time view of one upstream.
type Status struct {
	Target            string               `json:"target"`
	State             circuitbreaker.State `json:"state"`
	Since             time.Time            `json:"since"`
	LastChosen        *time.Time           `json:"last_chosen,omitempty"`
	Selections        int64                `json:"selections"`
	ActiveConnections int                  `json:"active_connections"`
	AvgResponse       time.Duration        `json:"avg_response"`
}

func NewLoadBalancer(cfg Config) (*LoadBalancer, error) {
	lb := &LoadBalancer{
		scorer:   cfg.Scorer,
		onAdded:  cfg.OnAdded,
		backends: make(map[string]*backend.Backend),
	}

	scorer, err := scoring.New(cfg.Scorer, lb.Backend)
	if err != nil {
		return nil, fmt.Errorf("creating scorer: %w", err)
	}
	lb.keyed, _ = scorer.(scoring.Keyed)

	lb.engine = selector.New(selector.Config[string]{
		Scorer:         scorer,
		ClosingTimeout: cfg.ClosingTimeout,
		Clock:          cfg.Clock,
		Logger:         cfg.Logger,
		OnTransition:   cfg.OnTransition,
	})

	return lb, nil
}

// Add registers b. A backend whose URL is already registered is replaced in
// the lookup but keeps its single upstream entry.
func (lb *LoadBalancer) Add(b *backend.Backend) {
	target := b.URL().String()

	lb.backendsMu.Lock()
	_, exists := lb.backends[target]
	lb.backends[target] = b
	lb.backendsMu.Unlock()

	if exists {
		return
	}

	lb.mutex.Lock()
	lb.engine.Add(target)
	lb.mutex.Unlock()

	if lb.onAdded != nil {
		lb.onAdded(target)
	}
}

func (lb *LoadBalancer) Remove(target string) {
	lb.mutex.Lock()
	lb.engine.Remove(target)
	lb.mutex.Unlock()

	lb.backendsMu.Lock()
	delete(lb.backends, target)
	lb.backendsMu.Unlock()
}

// Backend returns the backend registered for target, or nil.
func (lb *LoadBalancer) Backend(target string) *backend.Backend {
	lb.backendsMu.RLock()
	defer lb.backendsMu.RUnlock()
	return lb.backends[target]
}

func (lb *LoadBalancer) Scorer() string {
	return lb.scorer
}

// Serve picks a backend and runs fn with it. The lock is released while fn
// runs, so concurrent requests proceed in parallel; a HALF-OPEN backend is
// closed once fn returns without having called Fail.
func (lb *LoadBalancer) Serve(fn func(r Reservation)) error {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	return lb.choose(fn)
}

// ServeKey is Serve for keyed scorers: key, usually the client IP, decides
// which backend the scorer prefers. Other scorers ignore it.
func (lb *LoadBalancer) ServeKey(key string, fn func(r Reservation)) error {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	if lb.keyed != nil {
		lb.keyed.SetKey(key)
	}

	return lb.choose(fn)
}

// choose runs one selection. lb.mutex must be held.
func (lb *LoadBalancer) choose(fn func(r Reservation)) error {
	var chooseErr error
	lb.engine.Choose(func(sel selector.Selection[string], err error) {
		if err != nil {
			chooseErr = err
			return
		}

		selections, _ := sel.Stats[selectionsStat].(int64)
		sel.Stats[selectionsStat] = selections + 1

		res := Reservation{
			Target:  sel.Target,
			Backend: lb.Backend(sel.Target),
			Fail: func() {
				lb.mutex.Lock()
				sel.Fail()
				lb.mutex.Unlock()
			},
		}

		if res.Backend != nil {
			res.Backend.IncrementConn()
			defer res.Backend.DecrementConn()
		}

		lb.mutex.Unlock()
		defer lb.mutex.Lock()
		fn(res)
	})

	return chooseErr
}

// Upstreams returns the state of every registered upstream in insertion order.
func (lb *LoadBalancer) Upstreams() []Status {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	all := lb.engine.Registry().All()
	statuses := make([]Status, 0, len(all))
	for _, u := range all {
		statuses = append(statuses, lb.status(u))
	}

	return statuses
}

// Unhealthy returns the upstreams whose breaker is OPEN or HALF-OPEN.
func (lb *LoadBalancer) Unhealthy() []Status {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	statuses := []Status{}
	lb.engine.ChooseAll(func(u *upstream.Upstream[string], _ int) {
		statuses = append(statuses, lb.status(u))
	})

	return statuses
}

func (lb *LoadBalancer) status(u *upstream.Upstream[string]) Status {
	s := Status{
		Target: u.Target(),
		State:  u.Status(),
		Since:  u.StatusTimestamp(),
	}

	if at, ok := u.LastChosen(); ok {
		s.LastChosen = &at
	}
	s.Selections, _ = u.Stats()[selectionsStat].(int64)

	if b := lb.Backend(u.Target()); b != nil {
		s.ActiveConnections = b.ActiveConnections()
		s.AvgResponse = b.EWMATime()
	}

	return s
}
