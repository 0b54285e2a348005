package network

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/types"
)

// connChannel is one TCP connection upgraded to a channel, shared by both
// the accepting Listener and the dialing Dialer.
type connChannel struct {
	conn   net.Conn
	reader *bufio.Reader
	log    types.Logger

	writeMu sync.Mutex

	hooks     adapter.Hooks
	channelId types.ChannelId

	mu            sync.Mutex
	closed        bool
	stoppedByCore bool
}

func newConnChannel(adapterId string, conn net.Conn, hooks adapter.Hooks, log types.Logger) *connChannel {
	cc := &connChannel{
		conn:   conn,
		reader: bufio.NewReader(conn),
		hooks:  hooks,
		log:    log,
	}
	gc := types.GeneratedChannel{
		AdapterId: adapterId,
		Kind:      types.ChannelNetwork,
		Send:      cc.send,
		Stop:      cc.coreInitiatedStop,
	}
	cc.channelId = hooks.AddChannel(gc)
	return cc
}

func (cc *connChannel) send(msg types.ProtocolMessage) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return writeFrame(cc.conn, data)
}

// run reads frames until the connection errors or ctx is cancelled,
// delivering each decoded message to the router. It blocks the calling
// goroutine for the connection's whole lifetime.
func (cc *connChannel) run(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cc.closeConn()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		data, err := readFrame(cc.reader)
		if err != nil {
			cc.selfTeardown()
			return
		}
		msg, err := decode(data)
		if err != nil {
			if cc.log != nil {
				cc.log.Warnf("network: dropping malformed frame on channel %d: %v", cc.channelId, err)
			}
			continue
		}
		cc.hooks.Deliver(cc.channelId, msg)
	}
}

func (cc *connChannel) closeConn() {
	cc.mu.Lock()
	already := cc.closed
	cc.closed = true
	cc.mu.Unlock()
	if !already {
		_ = cc.conn.Close()
	}
}

// coreInitiatedStop is wired as GeneratedChannel.Stop: the core tore this
// channel down itself, so the read loop must not call back into
// RemoveChannel when the resulting close makes it error out.
func (cc *connChannel) coreInitiatedStop() {
	cc.mu.Lock()
	cc.stoppedByCore = true
	cc.mu.Unlock()
	cc.closeConn()
}

// selfTeardown is used when the connection itself failed (read/write
// error, peer hangup); it notifies the core unless the core already knows.
func (cc *connChannel) selfTeardown() {
	cc.mu.Lock()
	byCore := cc.stoppedByCore
	cc.mu.Unlock()
	cc.closeConn()
	if !byCore {
		cc.hooks.RemoveChannel(cc.channelId)
	}
}
