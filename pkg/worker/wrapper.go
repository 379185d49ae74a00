package worker

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nimbusedge/edgehost/pkg/types"
)

// defaultRegion is used when the host environment does not set FLY_REGION,
// per spec.md §4.6 step 1.
const defaultRegion = "UNKNOWN"

// syntheticEnv builds the env-object-literal injected into the wrapper:
// at minimum REGION (from the host's FLY_REGION, defaulting to
// "UNKNOWN") and PORT (the decimal assigned port), per spec.md §4.6
// step 1. Callers may pass additional key/value pairs to seed into the
// same frozen object (e.g. from a future per-tenant env source).
func syntheticEnv(port uint16, extra types.Env) types.Env {
	region := os.Getenv("FLY_REGION")
	if region == "" {
		region = defaultRegion
	}
	env := make(types.Env, len(extra)+2)
	for k, v := range extra {
		env[k] = v
	}
	env["REGION"] = region
	env["PORT"] = fmt.Sprintf("%d", port)
	return env
}

// wrapperSource synthesizes the wrapper module described in spec.md §4.6
// step 1: a static import of the tenant module's default export, and an
// HTTP-server start on 0.0.0.0:port whose handler delegates to
// def.fetch(request, env). The listen itself goes through __hostListen,
// which is policy-checked exactly like any other capability op (spec.md
// §4.2): the wrapper has no special privilege, it is simply the one piece
// of code running on the isolate's own assigned port.
//
// env is not a plain object literal: spec.md §4.6 step 4 and §9 require
// toObject() (a copy of the injected map) and get(key), with set/delete
// throwing. __envData holds the real values; __env is the frozen facade
// tenant code actually receives.
func wrapperSource(tenantLocator types.Locator, port uint16, env types.Env) (string, error) {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshaling synthetic env: %w", err)
	}

	return fmt.Sprintf(`import def from %q;

const __envData = Object.freeze(%s);
const __env = Object.freeze({
	toObject: () => Object.assign({}, __envData),
	get: (key) => __envData[key],
	set: () => { throw new TypeError("env is read-only: set is not permitted"); },
	delete: () => { throw new TypeError("env is read-only: delete is not permitted"); },
});

__hostListen(%d, async (__rawReq) => {
	const __parsed = JSON.parse(__rawReq);
	const __req = {
		method: __parsed.method,
		url: __parsed.url,
		headers: new Headers(__parsed.headers),
		text: async () => __parsed.body,
		json: async () => JSON.parse(__parsed.body),
	};
	try {
		const response = await def.fetch(__req, __env);
		const headerPairs = {};
		response.headers.forEach((v, k) => { headerPairs[k] = v; });
		return JSON.stringify({ status: response.status, headers: headerPairs, body: response.body });
	} catch (err) {
		return JSON.stringify({ status: 500, headers: {}, body: String(err && err.stack || err) });
	}
});
`, string(tenantLocator), string(envJSON), port), nil
}
