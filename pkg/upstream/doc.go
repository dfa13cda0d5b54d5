// Package upstream holds the ordered set of backend candidates a selector
// chooses from. Each Upstream pairs a caller-defined target with a circuit
// breaker, the time it was last chosen and an opaque Stats map.
package upstream
