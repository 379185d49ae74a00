package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nimbusedge/edgehost/pkg/types"
)

func writeTenantModule(t *testing.T, dir, body string) types.Locator {
	t.Helper()
	path := filepath.Join(dir, "tenant.js")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing tenant module: %v", err)
	}
	return types.Locator("file://" + path)
}

func TestBuildAllowsWrapperAndItsOneImport(t *testing.T) {
	dir := t.TempDir()
	locator := writeTenantModule(t, dir, `export default { fetch: (req) => new Response("ok") };`)

	wrapper := `import def from "` + string(locator) + `";
def.fetch(null);`

	code, err := Build(wrapper, locator)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(code) == 0 {
		t.Fatal("Build() returned empty bundle")
	}
}

func TestBuildRejectsTransitiveImport(t *testing.T) {
	dir := t.TempDir()
	helper := writeTenantModule(t, dir, `export const helper = 1;`)
	tenant := filepath.Join(dir, "tenant.js")
	if err := os.WriteFile(tenant, []byte(`import {helper} from "./`+filepath.Base(string(helper))+`";
export default { fetch: () => helper };`), 0o644); err != nil {
		t.Fatalf("writing tenant module: %v", err)
	}
	locator := types.Locator("file://" + tenant)

	wrapper := `import def from "` + string(locator) + `";
def.fetch();`

	if _, err := Build(wrapper, locator); !errors.Is(err, types.ErrModuleLoadForbidden) {
		t.Fatalf("Build() error = %v, want ErrModuleLoadForbidden", err)
	}
}

func TestBuildRejectsDynamicImport(t *testing.T) {
	dir := t.TempDir()
	locator := writeTenantModule(t, dir, `export default { fetch: async () => { await import("./evil.js"); } };`)

	wrapper := `import def from "` + string(locator) + `";
def.fetch();`

	if _, err := Build(wrapper, locator); !errors.Is(err, types.ErrModuleLoadForbidden) {
		t.Fatalf("Build() error = %v, want ErrModuleLoadForbidden", err)
	}
}

func TestBuildRejectsWrapperImportOtherThanTenant(t *testing.T) {
	dir := t.TempDir()
	locator := writeTenantModule(t, dir, `export default { fetch: () => null };`)

	// The wrapper itself imports an arbitrary filesystem path instead of
	// the injected tenant locator; the gate must refuse it.
	wrapper := `import def from "file:///etc/passwd";
def.fetch();`

	if _, err := Build(wrapper, locator); !errors.Is(err, types.ErrModuleLoadForbidden) {
		t.Fatalf("Build() error = %v, want ErrModuleLoadForbidden", err)
	}
}
