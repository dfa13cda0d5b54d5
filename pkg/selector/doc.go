// Package selector chooses one upstream per request from a registry of
// candidates, using a pluggable Scorer and a circuit breaker per upstream.
//
// Usage:
//
//	engine := selector.New(selector.Config[string]{ClosingTimeout: 10 * time.Second})
//	engine.Add("http://localhost:8081")
//	engine.Add("http://localhost:8082")
//
//	engine.Choose(func(sel selector.Selection[string], err error) {
//	    if err != nil {
//	        // selector.ErrNoUpstreams
//	        return
//	    }
//	    if callBackend(sel.Target) != nil {
//	        sel.Fail()
//	    }
//	})
//
// Without a Scorer the engine uses RoundRobin, which cycles through the
// upstreams in insertion order and skips OPEN ones. A custom Scorer can take
// an upstream out of rotation by returning zero or a negative score.
//
// The engine does no I/O and has no background goroutines: OPEN upstreams are
// only reconsidered when a Choose call reaches them after the closing timeout.
package selector
