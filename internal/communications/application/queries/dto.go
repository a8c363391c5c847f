package queries

import (
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// CommunicationDTO is a data transfer object for communications.
type CommunicationDTO struct {
	ID            uuid.UUID      `json:"id"`
	Recipient     string         `json:"recipient"`
	Channel       string         `json:"channel"`
	Type          string         `json:"type"`
	Priority      string         `json:"priority"`
	Status        string         `json:"status"`
	Message       string         `json:"message,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	RequestedTime time.Time      `json:"requested_time"`
	ScheduledFor  time.Time      `json:"scheduled_for"`
	CreatedAt     time.Time      `json:"created_at"`
	ExecutedAt    *time.Time     `json:"executed_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	RetryCount    int            `json:"retry_count"`
	LastError     string         `json:"last_error,omitempty"`
	ExternalID    string         `json:"external_id,omitempty"`
}

// ToDTO converts a communication into its transfer form.
func ToDTO(c *domain.Communication) CommunicationDTO {
	return CommunicationDTO{
		ID:            c.ID,
		Recipient:     c.Recipient,
		Channel:       string(c.Channel),
		Type:          string(c.Type),
		Priority:      string(c.Priority),
		Status:        string(c.Status),
		Message:       c.Message,
		Reasoning:     c.Reasoning,
		Context:       c.Context,
		RequestedTime: c.RequestedTime,
		ScheduledFor:  c.ScheduledFor,
		CreatedAt:     c.CreatedAt,
		ExecutedAt:    c.ExecutedAt,
		CompletedAt:   c.CompletedAt,
		RetryCount:    c.RetryCount,
		LastError:     c.LastError,
		ExternalID:    c.ExternalID,
	}
}

func toDTOs(comms []*domain.Communication) []CommunicationDTO {
	dtos := make([]CommunicationDTO, 0, len(comms))
	for _, c := range comms {
		dtos = append(dtos, ToDTO(c))
	}
	return dtos
}
