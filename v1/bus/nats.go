package bus

import (
	"context"
	"sync"

	nats "github.com/nats-io/nats.go"
)

type natsSubscription struct {
	sub   *nats.Subscription
	chans []chan struct{}
}

// NATSBus implements Bus using a NATS backend.
type NATSBus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string]*natsSubscription
}

// NewNATSBus returns a new NATSBus using the provided connection.
func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn, subs: make(map[string]*natsSubscription)}
}

// Publish implements Bus.Publish.
func (b *NATSBus) Publish(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.Publish(key, []byte("1"))
}

// Subscribe implements Bus.Subscribe.
func (b *NATSBus) Subscribe(ctx context.Context, key string) (chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[key]; ok {
		sub.chans = append(sub.chans, ch)
		return ch, nil
	}
	entry := &natsSubscription{chans: []chan struct{}{ch}}
	sub, err := b.conn.Subscribe(key, func(*nats.Msg) {
		b.mu.Lock()
		chans := append([]chan struct{}(nil), entry.chans...)
		b.mu.Unlock()
		for _, c := range chans {
			select {
			case c <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return nil, err
	}
	entry.sub = sub
	b.subs[key] = entry
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *NATSBus) Unsubscribe(ctx context.Context, key string, ch chan struct{}) error {
	b.mu.Lock()
	entry, ok := b.subs[key]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	for i, c := range entry.chans {
		if c == ch {
			entry.chans[i] = entry.chans[len(entry.chans)-1]
			entry.chans = entry.chans[:len(entry.chans)-1]
			close(c)
			break
		}
	}
	var sub *nats.Subscription
	if len(entry.chans) == 0 {
		sub = entry.sub
		delete(b.subs, key)
	}
	b.mu.Unlock()
	if sub != nil {
		return sub.Unsubscribe()
	}
	return nil
}
