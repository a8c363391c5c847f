package domain

import "time"

// Contact is a person the engine may communicate with.
type Contact struct {
	ID               string             `json:"id" yaml:"id"`
	Name             string             `json:"name" yaml:"name"`
	PreferredChannel Channel            `json:"preferred_channel" yaml:"preferred_channel"`
	Addresses        map[Channel]string `json:"addresses,omitempty" yaml:"addresses"`
	LastContactedAt  time.Time          `json:"last_contacted_at" yaml:"last_contacted_at"`
	Tags             []string           `json:"tags,omitempty" yaml:"tags"`
}

// Address returns the platform address for a channel, if known.
func (c Contact) Address(channel Channel) (string, bool) {
	addr, ok := c.Addresses[channel]
	return addr, ok && addr != ""
}

// NeedsMaintenance reports whether the contact has gone quiet for longer than threshold.
func (c Contact) NeedsMaintenance(now time.Time, threshold time.Duration) bool {
	if c.LastContactedAt.IsZero() {
		return true
	}
	return now.Sub(c.LastContactedAt) >= threshold
}

// Preferences are user-level communication settings.
type Preferences struct {
	DefaultChannel   Channel  `json:"default_channel" yaml:"default_channel"`
	PausedRecipients []string `json:"paused_recipients,omitempty" yaml:"paused_recipients"`
	MaxPerTick       int      `json:"max_per_tick" yaml:"max_per_tick"`
}

// IsPaused reports whether outgoing communications to a recipient are suspended.
func (p Preferences) IsPaused(recipient string) bool {
	for _, r := range p.PausedRecipients {
		if r == recipient {
			return true
		}
	}
	return false
}

// SignalKind names an asynchronous trigger.
type SignalKind string

const (
	SignalCrisis            SignalKind = "crisis"
	SignalRelationshipStale SignalKind = "relationship_stale"
)

// Signal is an externally detected condition that may warrant an immediate communication.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	ContactID  string     `json:"contact_id"`
	Channel    Channel    `json:"channel,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}
