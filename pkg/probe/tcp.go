package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/nimbusedge/edgehost/pkg/types"
)

// Default backoff parameters from spec.md §9: "1 ms initial, capped at
// 50 ms" with "an overall deadline."
const (
	initialBackoff = time.Millisecond
	maxBackoff     = 50 * time.Millisecond
	defaultDeadline = 5 * time.Second
)

// TCPChecker busy-retries a TCP connect against Address until it
// succeeds, the context is cancelled, or Deadline elapses, backing off
// between attempts.
type TCPChecker struct {
	Address string

	// Deadline bounds the overall probe duration. Zero means
	// defaultDeadline.
	Deadline time.Duration

	// DialTimeout bounds each individual connect attempt. Zero means no
	// explicit per-attempt timeout beyond ctx/Deadline.
	DialTimeout time.Duration
}

// NewTCPChecker returns a checker for address with the default deadline.
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Deadline: defaultDeadline}
}

// WaitReady blocks until Address accepts a TCP connection or the probe
// gives up, in which case it returns types.ErrStartupFailed. This is the
// bridge from "process started" to "accepts TCP" spec.md §4.4 calls out
// as the handoff from cold-start to warm-reuse.
func (c *TCPChecker) WaitReady(ctx context.Context) error {
	deadline := c.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	dialer := &net.Dialer{Timeout: c.DialTimeout}
	backoff := initialBackoff

	for {
		conn, err := dialer.DialContext(ctx, "tcp", c.Address)
		if err == nil {
			conn.Close()
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%w: probing %s: %w", types.ErrStartupFailed, c.Address, ctx.Err())
		}
		if !isConnRefusedOrTimeout(err) {
			return fmt.Errorf("%w: probing %s: %w", types.ErrStartupFailed, c.Address, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: probing %s: %w", types.ErrStartupFailed, c.Address, ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// isConnRefusedOrTimeout reports whether err is the kind of transient
// dial failure worth retrying (the listener simply isn't up yet) rather
// than a hard failure worth surfacing immediately.
func isConnRefusedOrTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
