// Package loader implements the Module Loader Gate: the esbuild plugin
// that restricts module resolution to exactly the synthetic wrapper
// module and its one static import, per spec.md §4.3.
//
// Grounded on other_examples/ddc63bca_cryguy-worker__pool.go.go's use of
// esbuild's Transform API to turn ES module source into something a JS
// engine without native module support can run; this package goes one
// step further and uses esbuild's full Build/plugin API so the bundling
// step itself is the enforcement point, rather than trusting the engine's
// own resolver.
package loader
