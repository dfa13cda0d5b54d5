// Package httpserver wraps net/http.Server with validated configuration,
// late binding of the listener and graceful shutdown.
package httpserver
