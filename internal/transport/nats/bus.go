package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Bus publishes credited-reward notifications for downstream consumers.
// Delivery is at most once; the ledger remains the record of truth.
type Bus struct {
	nc     *nats.Conn
	prefix string
}

// NewBus returns a bus publishing on prefix+topic. prefix may be empty.
func NewBus(nc *nats.Conn, prefix string) *Bus {
	return &Bus{nc: nc, prefix: prefix}
}

func (b *Bus) Publish(topic string, data []byte) error {
	if err := b.nc.Publish(b.prefix+topic, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", b.prefix+topic, err)
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (b *Bus) Close() {
	_ = b.nc.Drain()
}
