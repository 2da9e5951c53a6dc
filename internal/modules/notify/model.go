// README: Push notification messages, device tokens and settings.
package notify

import (
	"time"

	"bagdrop/internal/types"
)

// Message is what the counterpart of a contract action receives.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushToken ties one device of a user to its push token.
type PushToken struct {
	UserID    types.ID
	DeviceID  string
	Token     string
	UpdatedAt time.Time
}

// Settings is the explicit configuration handed to the notification service.
type Settings struct {
	Enabled bool
	Sound   string
	Timeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{Enabled: true, Sound: "default", Timeout: 10 * time.Second}
}
