package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	nats "github.com/nats-io/nats.go"
)

func newNATSBus(t *testing.T) (*NATSBus, context.Context) {
	t.Helper()
	addr := os.Getenv("STRATA_TEST_NATS_ADDR")

	var conn *nats.Conn
	var s *server.Server
	var err error
	if addr != "" {
		conn, err = nats.Connect(addr)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
	} else {
		s = natsserver.RunRandClientPortServer()
		conn, err = nats.Connect(s.ClientURL())
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
	}
	t.Cleanup(func() {
		conn.Close()
		if s != nil {
			s.Shutdown()
		}
	})
	return NewNATSBus(conn), context.Background()
}

func TestNATSBusPublishSubscribe(t *testing.T) {
	b, ctx := newNATSBus(t)

	ch, err := b.Subscribe(ctx, "release.X")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(ctx, "release.X"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	if err := b.Unsubscribe(ctx, "release.X", ch); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
}

func TestNATSBusIndependentSubjects(t *testing.T) {
	b, ctx := newNATSBus(t)

	chX, _ := b.Subscribe(ctx, "release.X")
	chY, _ := b.Subscribe(ctx, "release.Y")

	if err := b.Publish(ctx, "release.Y"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-chY:
	case <-time.After(2 * time.Second):
		t.Fatal("Y subscriber missed its event")
	}
	select {
	case <-chX:
		t.Fatal("X subscriber received Y's event")
	case <-time.After(100 * time.Millisecond):
	}
}
