package app

import (
	"context"
	"net"
	"time"
)

// Connectivity reports whether the remote side is reachable
type Connectivity interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline never reports an outage
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }

// DialProbe considers the host online when a TCP connection to Addr succeeds
type DialProbe struct {
	Addr    string
	Timeout time.Duration
}

func (p DialProbe) Online(ctx context.Context) bool {
	if p.Addr == "" {
		return true
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
