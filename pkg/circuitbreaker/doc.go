// Package circuitbreaker implements the per-upstream health state machine used
// by the selector.
//
// A breaker has three states:
//
//   - CLOSED: healthy, the upstream can be selected
//   - OPEN: failing, the upstream is skipped
//   - HALF-OPEN: probing, the upstream can be selected once to prove it recovered
//
// Transitions are driven from outside; there are no timers. An OPEN breaker is
// only moved to HALF-OPEN when someone calls Probe after the closing timeout,
// and recovery from OPEN always passes through HALF-OPEN:
//
//	b := circuitbreaker.NewBreaker(time.Now())
//	b.Trip(time.Now())                      // CLOSED -> OPEN
//	b.Probe(time.Now(), 30*time.Second)     // OPEN -> HALF-OPEN once expired
//	b.Confirm(time.Now())                   // HALF-OPEN -> CLOSED
package circuitbreaker
