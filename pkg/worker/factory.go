package worker

import (
	"fmt"

	v8 "github.com/tommie/v8go"

	"github.com/nimbusedge/edgehost/pkg/loader"
	"github.com/nimbusedge/edgehost/pkg/policy"
	"github.com/nimbusedge/edgehost/pkg/types"
)

// Worker is one cold-started isolate: a V8 isolate+context bound to a
// tenant's wrapper module, plus the reactor goroutine that owns both.
type Worker struct {
	iso  *v8.Isolate
	r    *reactor
	Slug types.Slug
	Port uint16
}

// Start builds a fresh isolate for slug at port and evaluates its
// wrapper module, registering the in-isolate HTTP listener — this is the
// Worker Factory's full contract, spec.md §4.6 steps 1-6. It does not
// wait for the listener to become reachable; that readiness probe is the
// Router's job (spec.md §4.5 step 7), run independently so concurrent
// requests for the same slug can coalesce on the Isolate Manager's
// record instead of each re-running the factory.
func Start(slug types.Slug, tenantLocator types.Locator, port uint16, env types.Env) (*Worker, error) {
	pol := policy.New(port)
	env = syntheticEnv(port, env)

	source, err := wrapperSource(tenantLocator, port, env)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesizing wrapper: %w", types.ErrStartupFailed, err)
	}

	bundle, err := loader.Build(source, tenantLocator)
	if err != nil {
		return nil, err
	}

	iso := v8.NewIsolate()
	r := newReactor(iso, nil)

	global, err := installGlobals(iso, pol, slug, r)
	if err != nil {
		r.close()
		iso.Dispose()
		return nil, fmt.Errorf("%w: installing globals: %v", types.ErrStartupFailed, err)
	}

	v8ctx := v8.NewContext(iso, global)
	r.ctx = v8ctx

	var runErr error
	r.run(func() {
		if _, err := v8ctx.RunScript(polyfillSource, "polyfill.js"); err != nil {
			runErr = err
			return
		}
		if _, err := v8ctx.RunScript(string(bundle), "wrapper.bundle.js"); err != nil {
			runErr = err
		}
	})
	if runErr != nil {
		r.close()
		iso.Dispose()
		return nil, fmt.Errorf("%w: evaluating wrapper: %v", types.ErrStartupFailed, runErr)
	}

	return &Worker{iso: iso, r: r, Slug: slug, Port: port}, nil
}

// Close tears down the isolate and its reactor goroutine. The isolate's
// own wrapper-owned http.Server is left running until the process exits;
// spec.md's Non-goals exclude graceful eviction/idle shutdown.
func (w *Worker) Close() {
	w.r.close()
	w.iso.Dispose()
}
