// Package policy implements the Permission Policy: a stateless predicate,
// parameterized by one datum (the isolate's assigned loopback port), that
// the Worker Factory consults before performing any capability-sensitive
// op on behalf of tenant code.
//
// Grounded on original_source/src/runtime/runtime.rs's block_local_net +
// the FetchPermissions/NetPermissions trait impls: loopback hosts are
// denied except on the one port the isolate itself is allowed to bind.
package policy

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/nimbusedge/edgehost/pkg/types"
)

// OpClass identifies the category of capability-sensitive operation being
// checked, purely for error messages and metrics labels.
type OpClass string

const (
	OpConnect OpClass = "connect"
	OpListen  OpClass = "listen"
	OpFsRead  OpClass = "fs_read"
	OpFsWrite OpClass = "fs_write"
	OpExec    OpClass = "exec"
	OpFFI     OpClass = "ffi"
	OpHRTime  OpClass = "hrtime"
	OpEnv     OpClass = "env"
)

// loopbackHosts is the set of hostnames/addresses the policy treats as
// "this machine" for the purposes of net.Dial/net.Listen permission
// checks, matching spec.md §4.2's op-class table exactly.
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"::":        true,
	"::1":       true,
}

// Policy is the permission predicate for a single isolate, parameterized
// by the one loopback port the isolate is allowed to touch.
type Policy struct {
	AllowLocalPort uint16
}

// New returns a Policy scoped to allowLocalPort.
func New(allowLocalPort uint16) Policy {
	return Policy{AllowLocalPort: allowLocalPort}
}

// CheckNet evaluates an outbound connect, inbound listen, or websocket op
// against host H and port P. Both op classes share the same rule per
// spec.md §4.2's table.
func (p Policy) CheckNet(class OpClass, host string, port uint16) error {
	if !isLoopback(host) {
		return nil
	}
	if port == p.AllowLocalPort {
		return nil
	}
	return fmt.Errorf("%w: %s to %s:%d is a local address other than the assigned port %d",
		types.ErrPermissionDenied, class, host, port, p.AllowLocalPort)
}

// CheckFs always denies: the core grants no filesystem access to tenant
// code, read or write.
func (p Policy) CheckFs(class OpClass, path string) error {
	return fmt.Errorf("%w: %s of %q", types.ErrPermissionDenied, class, path)
}

// CheckDenyAlways denies subprocess spawn, native FFI, and high-resolution
// timers unconditionally — none of them are ever granted to tenant code.
func (p Policy) CheckDenyAlways(class OpClass) error {
	return fmt.Errorf("%w: %s", types.ErrPermissionDenied, class)
}

// isLoopback reports whether host names an address the policy treats as
// local, accepting both the literal forms in loopbackHosts and any
// resolvable loopback IP (e.g. "127.0.0.2").
func isLoopback(host string) bool {
	if loopbackHosts[host] {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}

// ParseHostPort splits a "host:port" authority into its parts for a
// CheckNet call, returning 0 if the port is absent or unparseable (which
// CheckNet's comparison against AllowLocalPort will then simply not
// match, correctly denying it).
func ParseHostPort(hostport string) (host string, port uint16) {
	h, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]"), 0
	}
	n, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return h, 0
	}
	return h, uint16(n)
}
