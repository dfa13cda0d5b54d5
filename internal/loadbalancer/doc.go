// Package loadbalancer makes the upstream selector usable from concurrent
// HTTP handlers. It owns the backends keyed by URL, serialises every engine
// call behind one mutex and exposes per-upstream status snapshots.
package loadbalancer
