package domain

import "time"

// Environment values for BotConfig.Env.
const (
	EnvLocal = "local"
	EnvLive  = "live"
)

// BotConfig is the configuration record that stores a flow document and the
// WhatsApp credentials of the bot it drives.
type BotConfig struct {
	Name     string `json:"name" yaml:"name"`
	FlowJSON string `json:"flow_json" yaml:"flow_json"`

	Env          string `json:"env,omitempty" yaml:"env,omitempty"`
	PhoneID      string `json:"phone_id,omitempty" yaml:"phone_id,omitempty"`
	AccessToken  string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	WebhookToken string `json:"webhook_token,omitempty" yaml:"webhook_token,omitempty"`
	AppSecret    string `json:"app_secret,omitempty" yaml:"app_secret,omitempty"`

	ProcessInBackground bool `json:"process_in_background,omitempty" yaml:"process_in_background,omitempty"`
	// SessionTTL is the session cache expiry in seconds. Zero means the cache default.
	SessionTTL int `json:"session_ttl,omitempty" yaml:"session_ttl,omitempty"`

	Modified time.Time `json:"modified" yaml:"modified"`
}

// Redacted returns a copy safe to log or return to the editor.
func (c BotConfig) Redacted() BotConfig {
	if c.AccessToken != "" {
		c.AccessToken = "********"
	}
	if c.AppSecret != "" {
		c.AppSecret = "********"
	}
	return c
}
