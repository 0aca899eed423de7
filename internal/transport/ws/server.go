package ws

import (
	"context"

	"panel-server-go/internal/domain/eventbus"
)

// Subscriber is the part of the event bus the relay needs.
type Subscriber interface {
	Subscribe(topic string, fn interface{}) error
	Unsubscribe(topic string, handler interface{}) error
}

// Relay forwards system message events from the bus to the hub.
type Relay struct {
	hub     *Hub
	bus     Subscriber
	handler func(eventbus.SystemMessageData)
}

// NewRelay subscribes hub to system messages on bus.
func NewRelay(hub *Hub, bus Subscriber) (*Relay, error) {
	r := &Relay{hub: hub, bus: bus}
	r.handler = func(msg eventbus.SystemMessageData) {
		r.hub.Broadcast(msg)
	}
	if err := bus.Subscribe(eventbus.EventSystemMessage, r.handler); err != nil {
		return nil, err
	}
	return r, nil
}

// Stop unsubscribes and closes every session.
func (r *Relay) Stop() error {
	err := r.bus.Unsubscribe(eventbus.EventSystemMessage, r.handler)
	r.hub.CloseAll(ErrSessionShutdown)
	return err
}

func contextWithoutRequest(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
