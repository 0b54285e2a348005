package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/types"
)

// Dialer actively maintains a connection to each of a fixed set of known
// addresses, retrying with exponential backoff and jitter while dials
// fail and redialing at once when an established connection drops (the
// backoff is reset after each successful dial) -- the sync core, unlike
// a closed-membership protocol, must tolerate peers that are transiently
// unreachable.
type Dialer struct {
	adapterId   string
	addresses   []string
	dialTimeout time.Duration
	log         types.Logger

	mu     sync.Mutex
	hooks  adapter.Hooks
	cancel context.CancelFunc
}

// NewDialer builds a Dialer that will connect to each of addresses once
// Start is called.
func NewDialer(adapterId string, addresses []string, dialTimeout time.Duration, log types.Logger) *Dialer {
	return &Dialer{adapterId: adapterId, addresses: addresses, dialTimeout: dialTimeout, log: log}
}

var _ adapter.Adapter = (*Dialer)(nil)

func (d *Dialer) Init(hooks adapter.Hooks) {
	d.mu.Lock()
	d.hooks = hooks
	d.mu.Unlock()
}

func (d *Dialer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	hooks := d.hooks
	d.mu.Unlock()

	for _, addr := range d.addresses {
		addr := addr
		go d.maintain(runCtx, addr, hooks)
	}
	return nil
}

func (d *Dialer) Deinit() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// maintain keeps addr connected for the lifetime of ctx: dial, run the
// connection until it drops, then redial at once; only failed dials wait
// out the backoff.
func (d *Dialer) maintain(ctx context.Context, addr string, hooks adapter.Hooks) {
	b := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 30 * time.Second, Jitter: true}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, d.dialTimeout)
		if err != nil {
			if d.log != nil {
				d.log.Warnf("network: dial %s failed: %v", addr, err)
			}
			wait := b.Duration()
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		cc := newConnChannel(d.adapterId, conn, hooks, d.log)
		cc.run(ctx)
	}
}
