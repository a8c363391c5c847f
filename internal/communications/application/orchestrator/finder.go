package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
)

// MaintenanceFinder proposes one relationship-maintenance message per contact
// that has gone quiet, skipping paused recipients and recipients that already
// have something pending or were reached within the history window.
type MaintenanceFinder struct{}

func (MaintenanceFinder) Identify(ctx context.Context, snapshot Snapshot) ([]domain.Request, error) {
	now := snapshot.Factors.Timestamp
	limit := snapshot.Preferences.MaxPerTick

	var requests []domain.Request
	for _, contact := range snapshot.ContactsNeedingMaintenance {
		if limit > 0 && len(requests) >= limit {
			break
		}
		if snapshot.Preferences.IsPaused(contact.ID) || snapshot.hasPending(contact.ID) {
			continue
		}

		channel := contact.PreferredChannel
		if channel == "" {
			channel = snapshot.Preferences.DefaultChannel
		}
		if channel == "" {
			channel = domain.ChannelEmail
		}

		requests = append(requests, domain.Request{
			Recipient:     contact.ID,
			Channel:       channel,
			Type:          domain.TypeRelationshipMaintenance,
			Priority:      domain.PriorityMedium,
			Message:       maintenanceMessage(contact),
			Reasoning:     quietFor(contact, now),
			RequestedTime: now,
			Context:       map[string]any{"contact_name": contact.Name},
		})
	}
	return requests, nil
}

func maintenanceMessage(c domain.Contact) string {
	name := c.Name
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, it has been a while. How are things going?", name)
}

func quietFor(c domain.Contact, now time.Time) string {
	if c.LastContactedAt.IsZero() {
		return "no recorded contact"
	}
	days := int(now.Sub(c.LastContactedAt).Hours() / 24)
	return fmt.Sprintf("no contact for %d days", days)
}
