package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
)

const maxResponseSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	clock         clockwork.Clock
	requests      map[string]int64
	selections    map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	breakerStates map[string]circuitbreaker.State
	transitions   map[string]int64
	rejected      int64
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                      `json:"total_requests"`
	Rejected      int64                      `json:"rejected"`
	Uptime        time.Duration              `json:"uptime"`
	Upstreams     map[string]UpstreamMetrics `json:"upstreams"`
	Scorer        string                     `json:"scorer"`
}

type UpstreamMetrics struct {
	Requests    int64                `json:"requests"`
	Selections  int64                `json:"selections"`
	State       circuitbreaker.State `json:"state"`
	Transitions int64                `json:"transitions"`
	AvgResponse time.Duration        `json:"avg_response"`
	P50Response time.Duration        `json:"p50_response"`
	P95Response time.Duration        `json:"p95_response"`
	P99Response time.Duration        `json:"p99_response"`
	StatusCodes map[int]int64        `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(upstream string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[upstream]++
}

func (m *Metrics) RecordSelection(upstream string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[upstream]++
}

func (m *Metrics) RecordResponse(upstream string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[upstream] = append(m.responseTimes[upstream], duration)

	if len(m.responseTimes[upstream]) > maxResponseSamples {
		m.responseTimes[upstream] = m.responseTimes[upstream][1:]
	}

	if m.statusCodes[upstream] == nil {
		m.statusCodes[upstream] = make(map[int]int64)
	}
	m.statusCodes[upstream][statusCode]++
}

func (m *Metrics) RecordTransition(upstream string, to circuitbreaker.State) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerStates[upstream] = to
	m.transitions[upstream]++
}

// RecordUpstream lists a newly registered upstream as CLOSED. A state that
// was already recorded is kept.
func (m *Metrics) RecordUpstream(upstream string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.breakerStates[upstream]; !ok {
		m.breakerStates[upstream] = circuitbreaker.StateClosed
	}
}

// RecordRejected counts a request that found no upstream to go to.
func (m *Metrics) RecordRejected() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejected++
}

func (m *Metrics) Snapshot(scorer string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Rejected:      m.rejected,
		TotalRequests: m.rejected,
		Uptime:        m.clock.Since(m.startTime),
		Upstreams:     make(map[string]UpstreamMetrics),
		Scorer:        scorer,
	}

	all := make(map[string]bool)
	for upstream := range m.requests {
		all[upstream] = true
	}
	for upstream := range m.selections {
		all[upstream] = true
	}
	for upstream := range m.responseTimes {
		all[upstream] = true
	}
	for upstream := range m.breakerStates {
		all[upstream] = true
	}

	for upstream := range all {
		snap.TotalRequests += m.requests[upstream]

		um := UpstreamMetrics{
			Requests:    m.requests[upstream],
			Selections:  m.selections[upstream],
			State:       m.breakerStates[upstream],
			Transitions: m.transitions[upstream],
			StatusCodes: make(map[int]int64, len(m.statusCodes[upstream])),
		}
		for code, n := range m.statusCodes[upstream] {
			um.StatusCodes[code] = n
		}

		durations := m.responseTimes[upstream]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			um.AvgResponse = average(sorted)
			um.P50Response = percentile(sorted, 0.50)
			um.P95Response = percentile(sorted, 0.95)
			um.P99Response = percentile(sorted, 0.99)
		}

		snap.Upstreams[upstream] = um
	}

	return snap
}

func NewMetrics(clock clockwork.Clock) *Metrics {
	return &Metrics{
		clock:         clock,
		requests:      make(map[string]int64),
		selections:    make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		breakerStates: make(map[string]circuitbreaker.State),
		transitions:   make(map[string]int64),
		startTime:     clock.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
