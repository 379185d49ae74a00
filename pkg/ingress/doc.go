// Package ingress implements the Router/Proxy: the single public
// operation handle(request) -> response described in spec.md §4.5,
// covering host-authority parsing, registry lookup, cold-start
// coalescing, the readiness probe, and reverse-proxy forwarding.
//
// Grounded on pkg/ingress/router.go's host-matching shape and
// pkg/ingress/proxy.go's http.Server + httputil.ReverseProxy wiring,
// generalized from virtual-host/path ingress rules to the spec's
// slug-from-authority routing.
package ingress
