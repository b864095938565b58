// Package services – consumer transport adapter
//
// This file connects a projector to a watermill subscriber. The adapter owns
// nothing but plumbing: it fans in the projector's topics, converts transport
// messages into InboundEvents, and translates Handle outcomes into acks
// (success, duplicate, malformed) or nacks (transient failure, redeliver).
package services

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// EventHandler is the consumer contract the adapter drives. Both the
// RevenueProjector and test fakes implement it.
type EventHandler interface {
	ConsumerName() string
	Topics() []string
	Handle(ctx context.Context, ev InboundEvent) error
}

// Consumer pumps messages from a subscriber into an EventHandler.
type Consumer struct {
	subscriber message.Subscriber
	handler    EventHandler
	log        zerolog.Logger

	wg sync.WaitGroup
}

// NewConsumer wires handler to subscriber.
func NewConsumer(subscriber message.Subscriber, handler EventHandler, log zerolog.Logger) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		handler:    handler,
		log:        log.With().Str("component", "consumer").Str("consumer", handler.ConsumerName()).Logger(),
	}
}

// Run subscribes to every topic of the handler and processes messages until
// ctx is cancelled. It returns after all topic pumps have drained.
func (c *Consumer) Run(ctx context.Context) error {
	for _, topic := range c.handler.Topics() {
		ch, err := c.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		c.wg.Add(1)
		go c.pump(ctx, topic, ch)
	}
	c.log.Info().Strs("topics", c.handler.Topics()).Msg("consumer running")
	<-ctx.Done()
	c.wg.Wait()
	return nil
}

func (c *Consumer) pump(ctx context.Context, topic string, ch <-chan *message.Message) {
	defer c.wg.Done()
	for msg := range ch {
		c.dispatch(ctx, topic, msg)
	}
}

// dispatch processes one message. Ack covers success, duplicates, and
// permanently malformed events; Nack asks the transport to redeliver.
func (c *Consumer) dispatch(ctx context.Context, topic string, msg *message.Message) {
	ev := InboundEvent{
		EventID:   msg.UUID,
		TenantID:  msg.Metadata.Get(MetaTenantID),
		EventType: msg.Metadata.Get(MetaEventType),
		Payload:   msg.Payload,
	}
	if ev.EventType == "" {
		ev.EventType = topic
	}

	if err := c.handler.Handle(ctx, ev); err != nil {
		msg.Nack()
		return
	}
	msg.Ack()
}
