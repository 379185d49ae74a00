package policy

import (
	"errors"
	"testing"

	"github.com/nimbusedge/edgehost/pkg/types"
)

func TestCheckNetAllowsAssignedPort(t *testing.T) {
	p := New(8081)

	tests := []struct {
		name    string
		host    string
		port    uint16
		wantErr bool
	}{
		{"self port allowed", "127.0.0.1", 8081, false},
		{"neighbor port denied", "127.0.0.1", 9999, true},
		{"0.0.0.0 neighbor denied", "0.0.0.0", 9999, true},
		{"ipv6 loopback denied", "::1", 9999, true},
		{"ipv6 loopback allowed on own port", "::1", 8081, false},
		{"non-loopback host allowed", "example.com", 80, false},
		{"arbitrary loopback literal", "127.0.0.2", 9999, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.CheckNet(OpConnect, tt.host, tt.port)
			if tt.wantErr && err == nil {
				t.Fatalf("CheckNet(%q, %d) = nil, want error", tt.host, tt.port)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("CheckNet(%q, %d) = %v, want nil", tt.host, tt.port, err)
			}
			if tt.wantErr && !errors.Is(err, types.ErrPermissionDenied) {
				t.Fatalf("CheckNet error = %v, want wrapping ErrPermissionDenied", err)
			}
		})
	}
}

func TestCheckFsAlwaysDenies(t *testing.T) {
	p := New(8081)
	for _, path := range []string{"/etc/passwd", "/tmp/x", ""} {
		if err := p.CheckFs(OpFsRead, path); !errors.Is(err, types.ErrPermissionDenied) {
			t.Fatalf("CheckFs(%q) = %v, want ErrPermissionDenied", path, err)
		}
	}
}

func TestCheckDenyAlways(t *testing.T) {
	p := New(8081)
	for _, class := range []OpClass{OpExec, OpFFI, OpHRTime} {
		if err := p.CheckDenyAlways(class); !errors.Is(err, types.ErrPermissionDenied) {
			t.Fatalf("CheckDenyAlways(%v) = %v, want ErrPermissionDenied", class, err)
		}
	}
}

func TestParseHostPort(t *testing.T) {
	host, port := ParseHostPort("127.0.0.1:8081")
	if host != "127.0.0.1" || port != 8081 {
		t.Fatalf("got %q:%d", host, port)
	}

	host, port = ParseHostPort("justahost")
	if host != "justahost" || port != 0 {
		t.Fatalf("got %q:%d, want passthrough with port 0", host, port)
	}
}
