package loader

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/nimbusedge/edgehost/pkg/types"
)

// wrapperNamespace is the esbuild virtual namespace used to serve the
// in-memory wrapper source instead of reading it from disk.
const wrapperNamespace = "edgehost-wrapper"

const fileScheme = "file://"

// Build bundles the synthetic wrapper source together with its one
// permitted import, tenantLocator, into a single IIFE the Worker Factory
// can feed to the engine. It is the sole point where module resolution
// happens; the gate's resolve/load contract from spec.md §4.3 is
// enforced entirely inside the esbuild plugin below; the engine itself
// never consults the filesystem directly.
func Build(wrapperSource string, tenantLocator types.Locator) ([]byte, error) {
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{string(types.WrapperLocator)},
		Bundle:      true,
		Write:       false,
		Format:      api.FormatIIFE,
		Platform:    api.PlatformNeutral,
		Plugins:     []api.Plugin{gatePlugin(wrapperSource, tenantLocator)},
		LogLevel:    api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{})
		return nil, fmt.Errorf("%w: %s", types.ErrModuleLoadForbidden, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one bundled output, got %d",
			types.ErrModuleLoadForbidden, len(result.OutputFiles))
	}
	return result.OutputFiles[0].Contents, nil
}

// gatePlugin is the Module Loader Gate itself: an esbuild plugin whose
// OnResolve hook implements spec.md §4.3's resolve contract and whose
// OnLoad hook serves the wrapper's in-memory source.
func gatePlugin(wrapperSource string, tenantLocator types.Locator) api.Plugin {
	wrapperPath := string(types.WrapperLocator)
	tenantPath := string(tenantLocator)

	return api.Plugin{
		Name: "module-loader-gate",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return resolve(args, wrapperPath, tenantPath)
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: wrapperNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := wrapperSource
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

// resolve implements spec.md §4.3: "resolve(specifier, referrer, is_main)
// succeeds only when (is_main ∧ specifier == wrapper) or
// (referrer == wrapper). All other requests fail with
// ModuleLoadForbidden." Dynamic import is rejected unconditionally,
// ahead of the is_main/referrer check, per the load contract's "fails
// immediately if is_dynamic".
func resolve(args api.OnResolveArgs, wrapperPath, tenantPath string) (api.OnResolveResult, error) {
	if args.Kind == api.ResolveJSDynamicImport {
		return api.OnResolveResult{}, fmt.Errorf("%w: dynamic import of %q is forbidden",
			types.ErrModuleLoadForbidden, args.Path)
	}

	if args.Kind == api.ResolveEntryPoint && args.Path == wrapperPath {
		return api.OnResolveResult{Path: wrapperPath, Namespace: wrapperNamespace}, nil
	}

	if args.Importer == wrapperPath {
		if args.Path != tenantPath {
			return api.OnResolveResult{}, fmt.Errorf(
				"%w: wrapper may only import the tenant module %q, not %q",
				types.ErrModuleLoadForbidden, tenantPath, args.Path)
		}
		fsPath, ok := strings.CutPrefix(args.Path, fileScheme)
		if !ok {
			return api.OnResolveResult{}, fmt.Errorf(
				"%w: tenant locator %q is not a file:// URL",
				types.ErrModuleLoadForbidden, args.Path)
		}
		return api.OnResolveResult{Path: fsPath}, nil
	}

	return api.OnResolveResult{}, fmt.Errorf(
		"%w: %q may not be resolved (referrer %q is not the wrapper module)",
		types.ErrModuleLoadForbidden, args.Path, args.Importer)
}
