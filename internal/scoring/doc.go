// Package scoring provides the scorers the proxy can plug into the selector
// in place of its default round robin:
//
//   - Least Connections: favours the backend with fewest in-flight requests
//   - Least Response Time: favours the lowest EWMA response time, weighted by load
//   - Random: uniform random choice among eligible backends
//   - Consistent Hash: pins a request key, usually the client IP, to its
//     owner on a hash ring, falling back while the owner is OPEN
//   - Weighted Round Robin: smooth weighted rotation by backend weight
//
// Scorers look backends up by target URL. A target without a backend scores
// zero, which takes it out of rotation until its breaker is probed again.
package scoring
