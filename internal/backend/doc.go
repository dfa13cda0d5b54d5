// Package backend implements reverse proxy functionality for backend servers.
// It provides connection tracking, response time monitoring, and reports
// failed requests back to the selector through the request context.
package backend
