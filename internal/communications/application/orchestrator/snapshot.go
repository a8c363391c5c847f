package orchestrator

import (
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
)

// ExternalFactors describe the moment a snapshot was taken.
type ExternalFactors struct {
	Timestamp time.Time `json:"timestamp"`
	IsWeekend bool      `json:"is_weekend"`
	HourOfDay int       `json:"hour_of_day"`
}

// Snapshot is the context handed to the opportunity finder on each tick.
type Snapshot struct {
	RecentHistory              []*domain.Communication `json:"recent_history"`
	Live                       []*domain.Communication `json:"live"`
	ContactsNeedingMaintenance []domain.Contact        `json:"contacts_needing_maintenance"`
	Preferences                domain.Preferences      `json:"preferences"`
	ChannelStatus              map[domain.Channel]bool `json:"channel_status"`
	Signals                    []domain.Signal         `json:"signals,omitempty"`
	Factors                    ExternalFactors         `json:"factors"`
}

// factorsAt derives external factors from a point in time.
func factorsAt(now time.Time) ExternalFactors {
	wd := now.Weekday()
	return ExternalFactors{
		Timestamp: now,
		IsWeekend: wd == time.Saturday || wd == time.Sunday,
		HourOfDay: now.Hour(),
	}
}

// hasPending reports whether a recipient already has something live or recently sent.
func (s Snapshot) hasPending(recipient string) bool {
	for _, c := range s.Live {
		if c.Recipient == recipient {
			return true
		}
	}
	for _, c := range s.RecentHistory {
		if c.Recipient == recipient && c.Status == domain.StatusSucceeded {
			return true
		}
	}
	return false
}
