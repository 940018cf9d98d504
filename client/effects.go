package client

import (
	"encoding/json"
	"log"
	"time"

	"go-notify/internal/notify"
)

// Notifier raises a desktop notification.
type Notifier interface {
	Notify(title, body string)
}

// SoundPlayer plays the new-message sound.
type SoundPlayer interface {
	Play()
}

// LogNotifier is the default Notifier; a real UI swaps in its own.
type LogNotifier struct{}

func (LogNotifier) Notify(title, body string) {
	log.Printf("notification: %s: %s", title, body)
}

// LogSound is the default SoundPlayer.
type LogSound struct{}

func (LogSound) Play() {
	log.Print("notification sound")
}

// CacheUpdater subscribes the local cache to inbound push frames. It is one
// consumer among several; the connection manager knows nothing about it.
type CacheUpdater struct {
	cache  *Cache
	unsubs []func()
}

func NewCacheUpdater(cache *Cache) *CacheUpdater {
	return &CacheUpdater{cache: cache}
}

func (u *CacheUpdater) Attach(bus *Bus) {
	onNew := func(payload json.RawMessage) {
		var p notify.NewPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("bad new-content payload: %v", err)
			return
		}
		u.cache.ApplyNew(notify.Item{
			DeliveryRecord: notify.DeliveryRecord{ID: p.DeliveryRecordID, ContentID: p.Content.ID},
			Content:        p.Content,
		})
	}
	u.unsubs = append(u.unsubs,
		bus.Subscribe(notify.EventNotificationNew, onNew),
		bus.Subscribe(notify.EventChatNewMessage, onNew),
		bus.Subscribe(notify.EventRead, func(payload json.RawMessage) {
			var p notify.ReadPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return
			}
			u.cache.ApplyRead(p.NotificationID)
		}),
		bus.Subscribe(notify.EventCountUpdated, func(payload json.RawMessage) {
			var p notify.CountPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return
			}
			u.cache.SetUnreadCount(p.Count)
		}),
	)
}

func (u *CacheUpdater) Detach() {
	for _, unsub := range u.unsubs {
		unsub()
	}
	u.unsubs = nil
}

// EffectGate fires the secondary channels (desktop notification, sound)
// behind the preference and quiet-hours filter. The cache and unread count
// update regardless; only these effects are suppressible.
type EffectGate struct {
	prefs    *Preferences
	notifier Notifier
	sound    SoundPlayer
	now      func() time.Time
	unsubs   []func()
}

func NewEffectGate(prefs *Preferences, notifier Notifier, sound SoundPlayer) *EffectGate {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if sound == nil {
		sound = LogSound{}
	}
	return &EffectGate{prefs: prefs, notifier: notifier, sound: sound, now: time.Now}
}

func (g *EffectGate) Attach(bus *Bus) {
	handler := func(payload json.RawMessage) {
		var p notify.NewPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		if !g.prefs.ShouldShowNotification(p.Content.Type) {
			return
		}
		if g.prefs.InQuietHours(g.now()) {
			return
		}
		if g.prefs.BrowserNotificationsEnabled {
			title := "New notification"
			if p.Content.Type == notify.TypeChatMessage {
				title = "New message"
			}
			g.notifier.Notify(title, p.Content.Body)
		}
		if g.prefs.SoundEnabled {
			g.sound.Play()
		}
	}
	g.unsubs = append(g.unsubs,
		bus.Subscribe(notify.EventNotificationNew, handler),
		bus.Subscribe(notify.EventChatNewMessage, handler),
	)
}

func (g *EffectGate) Detach() {
	for _, unsub := range g.unsubs {
		unsub()
	}
	g.unsubs = nil
}
