package client

import (
	"encoding/json"
	"os"
	"time"

	"go-notify/internal/notify"
)

// QuietHours is a daily window during which secondary channels stay silent.
// Start and End are minutes-of-day; Start > End means the window crosses
// midnight (22:00-08:00).
type QuietHours struct {
	Enabled bool `json:"enabled"`
	Start   int  `json:"start"`
	End     int  `json:"end"`
}

// Preferences gate the secondary effects only. The delivery record is always
// created and the in-app unread count always updates no matter what is set
// here; this is presentation-layer suppression, never data-layer suppression.
type Preferences struct {
	BrowserNotificationsEnabled bool                        `json:"browser_notifications_enabled"`
	SoundEnabled                bool                        `json:"sound_enabled"`
	TypeFilters                 map[notify.ContentType]bool `json:"type_filters"`
	QuietHours                  QuietHours                  `json:"quiet_hours"`
}

// DefaultPreferences shows everything and suppresses nothing.
func DefaultPreferences() *Preferences {
	return &Preferences{
		BrowserNotificationsEnabled: true,
		SoundEnabled:                true,
		TypeFilters:                 map[notify.ContentType]bool{},
	}
}

// Minutes builds a minutes-of-day value from hour and minute.
func Minutes(hour, minute int) int {
	return hour*60 + minute
}

// ShouldShowNotification is false only when the type is filtered out
// explicitly; unknown types default to visible.
func (p *Preferences) ShouldShowNotification(typ notify.ContentType) bool {
	if show, ok := p.TypeFilters[typ]; ok {
		return show
	}
	return true
}

// InQuietHours reports whether now falls inside the configured window.
func (p *Preferences) InQuietHours(now time.Time) bool {
	if !p.QuietHours.Enabled {
		return false
	}
	cur := Minutes(now.Hour(), now.Minute())
	start, end := p.QuietHours.Start, p.QuietHours.End
	if start > end {
		// Overnight window, e.g. 22:00-08:00.
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

// LoadPreferences reads preferences from path, falling back to defaults when
// the file does not exist yet.
func LoadPreferences(path string) (*Preferences, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return nil, err
	}
	p := DefaultPreferences()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Save persists preferences to path.
func (p *Preferences) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
