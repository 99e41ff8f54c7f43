package probe

import (
	"log"

	"NetSentry/internal/config"
	"NetSentry/internal/model"
	"NetSentry/internal/wire"

	"github.com/nats-io/nats.go"
)

// Publisher ships captured packets to the message bus.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS and returns a packet publisher.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.PacketSubject}, nil
}

// Publish encodes a packet and publishes it to the packet subject.
func (p *Publisher) Publish(pkt *model.PacketInfo) error {
	return p.nc.Publish(p.subject, wire.MarshalPacket(pkt))
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
