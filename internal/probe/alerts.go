package probe

import (
	"encoding/json"
	"log"

	"NetSentry/internal/config"
	"NetSentry/internal/model"

	"github.com/nats-io/nats.go"
)

// AlertPublisher broadcasts alerts onto the message bus as JSON, so
// dashboards and the API tier can follow them without sharing a binary
// codec. It implements model.Broadcaster.
type AlertPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewAlertPublisher connects to NATS and returns an alert publisher.
func NewAlertPublisher(cfg config.NATSConfig) (*AlertPublisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &AlertPublisher{nc: nc, subject: cfg.AlertSubject}, nil
}

// Broadcast publishes one alert to the alert subject.
func (p *AlertPublisher) Broadcast(alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *AlertPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}

// AlertHandler processes one alert received from the bus.
type AlertHandler func(alert *model.Alert)

// SubscribeAlerts attaches a handler to the alert subject on an existing
// connection. The caller owns the subscription.
func SubscribeAlerts(nc *nats.Conn, subject string, handler AlertHandler) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var alert model.Alert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			log.Printf("Error decoding alert message: %v", err)
			return
		}
		handler(&alert)
	})
}
