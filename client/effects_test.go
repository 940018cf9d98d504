package client

import (
	"encoding/json"
	"testing"
	"time"

	"go-notify/internal/notify"
)

type recordingNotifier struct {
	titles []string
}

func (r *recordingNotifier) Notify(title, _ string) { r.titles = append(r.titles, title) }

type recordingSound struct {
	plays int
}

func (r *recordingSound) Play() { r.plays++ }

func pushNew(bus *Bus, event string, typ notify.ContentType) {
	payload, _ := json.Marshal(notify.NewPayload{
		Content:          notify.Content{ID: 1, Type: typ, Body: "hello"},
		DeliveryRecordID: 10,
	})
	bus.Publish(event, payload)
}

func newGate(prefs *Preferences, at time.Time) (*EffectGate, *recordingNotifier, *recordingSound, *Bus) {
	notifier := &recordingNotifier{}
	sound := &recordingSound{}
	gate := NewEffectGate(prefs, notifier, sound)
	gate.now = func() time.Time { return at }
	bus := NewBus()
	gate.Attach(bus)
	return gate, notifier, sound, bus
}

func TestEffectGateFiresBothChannels(t *testing.T) {
	_, notifier, sound, bus := newGate(DefaultPreferences(), time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC))

	pushNew(bus, notify.EventChatNewMessage, notify.TypeChatMessage)
	pushNew(bus, notify.EventNotificationNew, notify.TypeSystemNotification)

	if len(notifier.titles) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifier.titles))
	}
	if notifier.titles[0] != "New message" || notifier.titles[1] != "New notification" {
		t.Fatalf("titles = %v", notifier.titles)
	}
	if sound.plays != 2 {
		t.Fatalf("sound plays = %d, want 2", sound.plays)
	}
}

func TestEffectGateQuietHoursSuppressesEverything(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.QuietHours = QuietHours{Enabled: true, Start: Minutes(22, 0), End: Minutes(8, 0)}
	_, notifier, sound, bus := newGate(prefs, time.Date(2026, 1, 10, 23, 30, 0, 0, time.UTC))

	pushNew(bus, notify.EventChatNewMessage, notify.TypeChatMessage)

	if len(notifier.titles) != 0 || sound.plays != 0 {
		t.Fatalf("effects fired inside quiet hours: %v, %d plays", notifier.titles, sound.plays)
	}
}

func TestEffectGateTypeFilterSuppresses(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.TypeFilters[notify.TypeSystemNotification] = false
	_, notifier, sound, bus := newGate(prefs, time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC))

	pushNew(bus, notify.EventNotificationNew, notify.TypeSystemNotification)
	pushNew(bus, notify.EventChatNewMessage, notify.TypeChatMessage)

	if len(notifier.titles) != 1 || notifier.titles[0] != "New message" {
		t.Fatalf("titles = %v, want only the chat message", notifier.titles)
	}
	if sound.plays != 1 {
		t.Fatalf("sound plays = %d, want 1", sound.plays)
	}
}

func TestEffectGateChannelsToggleIndependently(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.SoundEnabled = false
	_, notifier, sound, bus := newGate(prefs, time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC))

	pushNew(bus, notify.EventChatNewMessage, notify.TypeChatMessage)

	if len(notifier.titles) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.titles))
	}
	if sound.plays != 0 {
		t.Fatalf("sound plays = %d, want 0", sound.plays)
	}
}

func TestEffectGateDetachStopsEffects(t *testing.T) {
	gate, notifier, _, bus := newGate(DefaultPreferences(), time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC))
	gate.Detach()

	pushNew(bus, notify.EventChatNewMessage, notify.TypeChatMessage)

	if len(notifier.titles) != 0 {
		t.Fatalf("effects fired after Detach: %v", notifier.titles)
	}
}

func TestCacheUpdaterAppliesPushFrames(t *testing.T) {
	cache := NewCache(nil)
	updater := NewCacheUpdater(cache)
	bus := NewBus()
	updater.Attach(bus)

	pushNew(bus, notify.EventNotificationNew, notify.TypeSystemNotification)
	if cache.Unread() != 1 {
		t.Fatalf("unread = %d after new frame, want 1", cache.Unread())
	}

	read, _ := json.Marshal(notify.ReadPayload{NotificationID: 10})
	bus.Publish(notify.EventRead, read)
	if cache.Unread() != 0 {
		t.Fatalf("unread = %d after read frame, want 0", cache.Unread())
	}

	count, _ := json.Marshal(notify.CountPayload{Count: 9})
	bus.Publish(notify.EventCountUpdated, count)
	if cache.Unread() != 9 {
		t.Fatalf("unread = %d after count frame, want 9", cache.Unread())
	}

	updater.Detach()
	pushNew(bus, notify.EventNotificationNew, notify.TypeSystemNotification)
	if cache.Unread() != 9 {
		t.Fatalf("cache changed after Detach: unread = %d", cache.Unread())
	}
}
