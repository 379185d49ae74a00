package types

import "errors"

// Sentinel error kinds used across the host. These are not HTTP status
// codes themselves — the ingress layer maps them to status codes — they
// let every layer test "what kind of failure is this" with errors.Is
// rather than string matching.
var (
	// ErrNoSuchTenant is returned by registry lookups for an unknown slug.
	ErrNoSuchTenant = errors.New("no such tenant")
	// ErrBadHost is returned when a request's authority is missing or
	// does not yield a usable slug.
	ErrBadHost = errors.New("bad host")
	// ErrNoPortsAvailable is returned by the port pool when empty.
	ErrNoPortsAvailable = errors.New("no ports available")
	// ErrStartupFailed covers any failure between taking a port and the
	// readiness probe succeeding (engine construction, module load,
	// wrapper evaluation, probe timeout).
	ErrStartupFailed = errors.New("worker startup failed")
	// ErrUpstreamError covers reverse-proxy failures after readiness.
	ErrUpstreamError = errors.New("upstream error")
	// ErrPermissionDenied is raised inside the engine on a denied
	// capability-sensitive op; it is thrown to user code as a catchable JS
	// error (inside an async handler, a rejection), never sent directly to
	// the client.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrModuleLoadForbidden is raised by the Module Loader Gate for any
	// specifier outside its fixed contract. Treated as ErrStartupFailed
	// by callers one level up.
	ErrModuleLoadForbidden = errors.New("module load forbidden")
)
