package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// Dispatcher owns the durable-then-push order of a dispatch: content and
// delivery records are persisted first, live delivery is best-effort on top.
type Dispatcher struct {
	store    Store
	registry *Registry
	broker   Broker
}

func NewDispatcher(store Store, registry *Registry, broker Broker) *Dispatcher {
	return &Dispatcher{store: store, registry: registry, broker: broker}
}

// Dispatch persists one Content plus a DeliveryRecord per recipient, then
// publishes the envelope for live delivery. A publish failure is logged and
// swallowed: durability already happened, offline recipients pick the records
// up on their next fetch anyway.
func (d *Dispatcher) Dispatch(ctx context.Context, authorID int, recipientIDs []int, body string, typ ContentType) (*Content, []DeliveryRecord, error) {
	content, err := d.store.CreateContent(ctx, authorID, body, typ)
	if err != nil {
		return nil, nil, err
	}

	records, err := d.store.CreateDeliveryRecords(ctx, content.ID, recipientIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch fan-out: %w", err)
	}

	recipients := make([]Recipient, len(records))
	for i, rec := range records {
		recipients[i] = Recipient{UserID: rec.RecipientID, DeliveryRecordID: rec.ID}
	}
	env := Envelope{Kind: EnvelopeDispatch, Content: content, Recipients: recipients}
	if err := d.broker.Publish(ctx, env); err != nil {
		log.Printf("dispatch %d: publish failed, recipients will sync on next fetch: %v", content.ID, err)
	}

	return content, records, nil
}

// NotifyRead publishes a read envelope so the user's other live sessions see
// the state change (cross-device sync).
func (d *Dispatcher) NotifyRead(ctx context.Context, userID int, notificationID int64) {
	env := Envelope{Kind: EnvelopeRead, UserID: userID, NotificationID: notificationID}
	if err := d.broker.Publish(ctx, env); err != nil {
		log.Printf("read envelope for user %d: %v", userID, err)
	}
}

// NotifyReadAll publishes a read-all envelope for the user.
func (d *Dispatcher) NotifyReadAll(ctx context.Context, userID int) {
	env := Envelope{Kind: EnvelopeReadAll, UserID: userID}
	if err := d.broker.Publish(ctx, env); err != nil {
		log.Printf("read-all envelope for user %d: %v", userID, err)
	}
}

// Run consumes envelopes from the broker and pushes frames to this
// instance's local sessions. It returns when ctx is cancelled or the broker
// channel closes.
func (d *Dispatcher) Run(ctx context.Context) {
	ch := d.broker.Subscribe(ctx)
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return
			}
			d.deliver(ctx, env)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) {
	switch env.Kind {
	case EnvelopeDispatch:
		d.deliverDispatch(ctx, env)
	case EnvelopeRead:
		d.deliverRead(ctx, env)
	case EnvelopeReadAll:
		d.pushCount(ctx, env.UserID)
	}
}

func (d *Dispatcher) deliverDispatch(ctx context.Context, env Envelope) {
	if env.Content == nil {
		return
	}
	event := EventNotificationNew
	if env.Content.Type == TypeChatMessage {
		event = EventChatNewMessage
	}

	for _, rcpt := range env.Recipients {
		sessions := d.registry.ChannelsFor(rcpt.UserID)
		if len(sessions) == 0 {
			continue // offline, the delivery record is already durable
		}

		frame := mustFrame(event, NewPayload{Content: *env.Content, DeliveryRecordID: rcpt.DeliveryRecordID})
		for _, s := range sessions {
			if !s.TrySend(frame) {
				log.Printf("push to user %d session %s dropped", rcpt.UserID, s.Handle)
			}
		}
		d.pushCount(ctx, rcpt.UserID)
	}
}

func (d *Dispatcher) deliverRead(ctx context.Context, env Envelope) {
	sessions := d.registry.ChannelsFor(env.UserID)
	if len(sessions) == 0 {
		return
	}
	frame := mustFrame(EventRead, ReadPayload{NotificationID: env.NotificationID})
	for _, s := range sessions {
		if !s.TrySend(frame) {
			log.Printf("read push to user %d session %s dropped", env.UserID, s.Handle)
		}
	}
	d.pushCount(ctx, env.UserID)
}

// pushCount recomputes the unread count from the rows and pushes it to every
// live session of the user, keeping simultaneous sessions in sync.
func (d *Dispatcher) pushCount(ctx context.Context, userID int) {
	sessions := d.registry.ChannelsFor(userID)
	if len(sessions) == 0 {
		return
	}
	count, err := d.store.CountUnread(ctx, userID)
	if err != nil {
		log.Printf("count unread for user %d: %v", userID, err)
		return
	}
	frame := mustFrame(EventCountUpdated, CountPayload{Count: count})
	for _, s := range sessions {
		if !s.TrySend(frame) {
			log.Printf("count push to user %d session %s dropped", userID, s.Handle)
		}
	}
}

func mustFrame(event string, payload any) []byte {
	b, _ := json.Marshal(Frame{Event: event, Payload: payload})
	return b
}
