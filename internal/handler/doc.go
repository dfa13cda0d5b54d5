// Package handler implements the HTTP handlers of the load balancer.
// LoadBalancerHandler picks an upstream for each request, proxies to it and
// reports failed requests back to the selector. The upstream handlers expose
// breaker state as JSON.
package handler
