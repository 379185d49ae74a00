package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nimbusedge/edgehost/pkg/types"
)

func TestWaitReadySucceedsOnceListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	checker := NewTCPChecker(ln.Addr().String())
	if err := checker.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady() error = %v, want nil", err)
	}
}

func TestWaitReadyRetriesThenSucceeds(t *testing.T) {
	addr := "127.0.0.1:0"
	probeLn, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	target := probeLn.Addr().String()
	probeLn.Close() // release the port; nothing listens on it yet

	checker := &TCPChecker{Address: target, Deadline: time.Second}

	done := make(chan error, 1)
	go func() { done <- checker.WaitReady(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	ln, err := net.Listen("tcp", target)
	if err != nil {
		t.Fatalf("re-listening on %s: %v", target, err)
	}
	defer ln.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitReady() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReady() did not return after listener came up")
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	probeLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	target := probeLn.Addr().String()
	probeLn.Close()

	checker := &TCPChecker{Address: target, Deadline: 50 * time.Millisecond}
	err = checker.WaitReady(context.Background())
	if !errors.Is(err, types.ErrStartupFailed) {
		t.Fatalf("WaitReady() error = %v, want ErrStartupFailed", err)
	}
}

func TestWaitReadyRespectsCancellation(t *testing.T) {
	probeLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	target := probeLn.Addr().String()
	probeLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	checker := &TCPChecker{Address: target, Deadline: 5 * time.Second}
	if err := checker.WaitReady(ctx); !errors.Is(err, types.ErrStartupFailed) {
		t.Fatalf("WaitReady() error = %v, want ErrStartupFailed", err)
	}
}
