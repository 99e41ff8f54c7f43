package probe

import (
	"log"

	"NetSentry/internal/config"
	"NetSentry/internal/model"
	"NetSentry/internal/wire"

	"github.com/nats-io/nats.go"
)

// PacketHandler processes one received packet.
type PacketHandler func(pkt *model.PacketInfo)

// Subscriber feeds packets from the message bus into a handler.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to NATS and returns a packet subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.PacketSubject}, nil
}

// Start subscribes to the packet subject and hands every decoded packet to
// the handler. Undecodable messages are logged and skipped.
func (s *Subscriber) Start(handler PacketHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		pkt, err := wire.UnmarshalPacket(msg.Data)
		if err != nil {
			log.Printf("Error decoding packet message: %v", err)
			return
		}
		handler(pkt)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for packets...", s.subject)
	return nil
}

// Close unsubscribes and drains the NATS connection, letting in-flight
// handler callbacks finish.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Drain()
		log.Println("NATS connection closed.")
	}
}
