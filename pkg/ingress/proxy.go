package ingress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nimbusedge/edgehost/pkg/isolate"
	"github.com/nimbusedge/edgehost/pkg/log"
	"github.com/nimbusedge/edgehost/pkg/metrics"
	"github.com/nimbusedge/edgehost/pkg/probe"
	"github.com/nimbusedge/edgehost/pkg/registry"
	"github.com/nimbusedge/edgehost/pkg/types"
	"github.com/nimbusedge/edgehost/pkg/worker"
)

// StartFunc builds and evaluates a worker's isolate for slug at port. It
// is worker.Start without the env argument and the *Worker result (see
// NewRouter's adapter). Router accepts one as a dependency
// so tests can substitute a lightweight fake backend instead of a real
// V8 isolate; production wiring passes worker.Start.
type StartFunc func(slug types.Slug, locator types.Locator, port uint16) error

// Router is the Router/Proxy component: handle(request) -> response
// (spec.md §4.5), implemented as an http.Handler.
type Router struct {
	Registry      *registry.Registry
	Isolates      *isolate.Manager
	Start         StartFunc
	ProbeDeadline time.Duration

	transport http.RoundTripper
}

// NewRouter wires a Router around reg and isolates using worker.Start as
// the Worker Factory entry point.
func NewRouter(reg *registry.Registry, isolates *isolate.Manager) *Router {
	return &Router{
		Registry: reg,
		Isolates: isolates,
		Start: func(slug types.Slug, locator types.Locator, port uint16) error {
			w, err := worker.Start(slug, locator, port, nil)
			if err != nil {
				return err
			}
			// The reverse proxy only needs the listener up; the Worker
			// handle itself is not tracked further (spec.md's Non-goals
			// exclude graceful eviction/idle shutdown, so there is
			// nothing later that would call w.Close()).
			_ = w
			return nil
		},
		ProbeDeadline: 5 * time.Second,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := log.WithRequestID(requestID)
	timer := metrics.NewTimer()

	slug, status, err := rt.resolveSlug(r)
	if err != nil {
		rt.fail(w, logger, "", status, err)
		return
	}

	locator, err := rt.Registry.Lookup(slug)
	if err != nil {
		rt.fail(w, logger, string(slug), http.StatusBadGateway, err)
		return
	}

	port, err := rt.ensureRunning(r.Context(), slug, locator, logger)
	if err != nil {
		rt.fail(w, logger, string(slug), statusFor(err), err)
		return
	}

	rt.forward(w, r, slug, port, logger)
	metrics.IngressRequestDuration.WithLabelValues(string(slug)).Observe(timer.Duration().Seconds())
}

// resolveSlug implements spec.md §4.5 steps 1-2: prefer :authority (Go's
// net/http already folds that into Request.Host for both HTTP/1.1 and
// HTTP/2), fall back to the Host header, extract the slug up to the
// first '.'.
func (rt *Router) resolveSlug(r *http.Request) (types.Slug, int, error) {
	authority := r.Host
	if authority == "" {
		return "", http.StatusBadRequest, fmt.Errorf("%w: missing host authority", types.ErrBadHost)
	}
	if host, _, err := net.SplitHostPort(authority); err == nil {
		authority = host
	}

	slug, _, found := strings.Cut(authority, ".")
	if !found {
		slug = authority
	}
	if slug == "" {
		return "", http.StatusBadRequest, fmt.Errorf("%w: empty slug in authority %q", types.ErrBadHost, authority)
	}
	return types.Slug(slug), 0, nil
}

// ensureRunning implements spec.md §4.5 steps 3-7: reuse a running or
// starting isolate if one exists (coalescing concurrent cold starts onto
// the same record), otherwise take a port, register before probing, run
// the Worker Factory, and probe readiness.
func (rt *Router) ensureRunning(ctx context.Context, slug types.Slug, locator types.Locator, logger zerolog.Logger) (uint16, error) {
	rec, owner, err := rt.Isolates.Acquire(slug)
	if err != nil {
		return 0, err
	}
	if !owner {
		select {
		case <-rec.Ready:
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", types.ErrUpstreamError, ctx.Err())
		}
		if rec.State != types.StateReady {
			return 0, fmt.Errorf("%w: isolate for %q previously failed: %w", types.ErrStartupFailed, slug, rec.Err())
		}
		return rec.Port, nil
	}

	port := rec.Port
	coldStart := metrics.NewTimer()
	if err := rt.Start(slug, locator, port); err != nil {
		rt.Isolates.MarkFailed(slug, err)
		rt.Isolates.Deregister(slug)
		metrics.ColdStartsTotal.WithLabelValues("startup_failed").Inc()
		return 0, fmt.Errorf("%w: %v", types.ErrStartupFailed, err)
	}

	checker := probe.NewTCPChecker(fmt.Sprintf("127.0.0.1:%d", port))
	checker.Deadline = rt.ProbeDeadline
	if err := checker.WaitReady(ctx); err != nil {
		rt.Isolates.MarkFailed(slug, err)
		rt.Isolates.Deregister(slug)
		metrics.ColdStartsTotal.WithLabelValues("startup_failed").Inc()
		return 0, err
	}

	rt.Isolates.MarkReady(slug)
	elapsed := coldStart.Duration()
	metrics.ColdStartsTotal.WithLabelValues("ready").Inc()
	metrics.ColdStartDuration.Observe(elapsed.Seconds())
	logger.Info().Str("slug", string(slug)).Uint16("port", port).Int64("elapsed_ms", elapsed.Milliseconds()).Msg("cold start")

	return port, nil
}

// forward implements spec.md §4.5 step 8: reverse-proxy the request to
// the isolate's port, streaming both bodies unchanged.
func (rt *Router) forward(w http.ResponseWriter, r *http.Request, slug types.Slug, port uint16, logger zerolog.Logger) {
	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", port)}
	proxy := httputil.NewSingleHostReverseProxy(target)
	if rt.transport != nil {
		proxy.Transport = rt.transport
	}

	status := http.StatusOK
	proxy.ModifyResponse = func(resp *http.Response) error {
		status = resp.StatusCode
		return nil
	}

	var proxyErr error
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		proxyErr = err
		http.Error(w, "upstream error", http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, r)

	statusClass := statusClassFor(status)
	if proxyErr != nil {
		statusClass = "5xx"
		logger.Error().Str("slug", string(slug)).Uint16("port", port).Err(proxyErr).Msg(types.ErrUpstreamError.Error())
	}
	metrics.IngressRequestsTotal.WithLabelValues(string(slug), statusClass).Inc()
}

func (rt *Router) fail(w http.ResponseWriter, logger zerolog.Logger, slug string, status int, err error) {
	if status == 0 {
		status = http.StatusBadGateway
	}
	logger.Warn().Str("slug", slug).Int("status", status).Err(err).Msg("request failed")
	metrics.IngressRequestsTotal.WithLabelValues(slug, statusClassFor(status)).Inc()
	http.Error(w, err.Error(), status)
}

func statusClassFor(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

// statusFor maps the sentinel error kinds from spec.md §7 to HTTP status
// codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrBadHost):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNoSuchTenant):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrNoPortsAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrStartupFailed), errors.Is(err, types.ErrModuleLoadForbidden):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrUpstreamError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
