// Package network implements a TCP, length-prefixed, JSON-framed adapter:
// Listener accepts inbound connections and upgrades each to a channel;
// Dialer actively connects to a fixed set of known addresses, retrying
// with exponential backoff and jitter while a dial fails and redialing at
// once when an established connection drops.
package network

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/types"
)

// Listener accepts inbound TCP connections on bindAddr and upgrades each
// one to a channel.
type Listener struct {
	adapterId string
	bindAddr  string
	log       types.Logger

	mu    sync.Mutex
	hooks adapter.Hooks
	ln    net.Listener
}

// NewListener builds a Listener that will bind bindAddr (e.g. ":4242")
// once Start is called.
func NewListener(adapterId, bindAddr string, log types.Logger) *Listener {
	return &Listener{adapterId: adapterId, bindAddr: bindAddr, log: log}
}

var _ adapter.Adapter = (*Listener)(nil)

func (l *Listener) Init(hooks adapter.Hooks) {
	l.mu.Lock()
	l.hooks = hooks
	l.mu.Unlock()
}

func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.bindAddr)
	if err != nil {
		return fmt.Errorf("network: listen on %s: %w", l.bindAddr, err)
	}
	l.mu.Lock()
	l.ln = ln
	hooks := l.hooks
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go l.accept(ctx, ln, hooks)
	return nil
}

func (l *Listener) accept(ctx context.Context, ln net.Listener, hooks adapter.Hooks) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if l.log != nil {
					l.log.Warnf("network: accept on %s failed: %v", l.bindAddr, err)
				}
				return
			}
		}
		cc := newConnChannel(l.adapterId, conn, hooks, l.log)
		go cc.run(ctx)
	}
}

func (l *Listener) Deinit() {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

// LocalAddress returns the address the listener actually bound to, useful
// when bindAddr used a ":0" ephemeral port.
func (l *Listener) LocalAddress() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return l.bindAddr
	}
	return l.ln.Addr().String()
}
