package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel identifies the platform a communication is delivered through.
type Channel string

const (
	ChannelEmail              Channel = "email"
	ChannelChat               Channel = "chat"
	ChannelEnterpriseChat     Channel = "enterprise_chat"
	ChannelSocialProfessional Channel = "social_professional"
	ChannelSocialBroadcast    Channel = "social_broadcast"
	ChannelSMS                Channel = "sms"
	ChannelVoice              Channel = "voice"
)

// AllChannels returns every supported channel in a stable order.
func AllChannels() []Channel {
	return []Channel{
		ChannelEmail,
		ChannelChat,
		ChannelEnterpriseChat,
		ChannelSocialProfessional,
		ChannelSocialBroadcast,
		ChannelSMS,
		ChannelVoice,
	}
}

// IsValid returns true if the channel is a known value.
func (c Channel) IsValid() bool {
	for _, known := range AllChannels() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseChannel converts a string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, s)
	}
	return c, nil
}

// Type is the purpose of a communication.
type Type string

const (
	TypeFollowUp                Type = "follow_up"
	TypeCelebration             Type = "celebration"
	TypeCrisisResponse          Type = "crisis_response"
	TypeRelationshipMaintenance Type = "relationship_maintenance"
	TypeContentShare            Type = "content_share"
	TypeManual                  Type = "manual"
)

// IsValid returns true if the type is a known value.
func (t Type) IsValid() bool {
	switch t {
	case TypeFollowUp, TypeCelebration, TypeCrisisResponse,
		TypeRelationshipMaintenance, TypeContentShare, TypeManual:
		return true
	default:
		return false
	}
}

// ParseType converts a string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, s)
	}
	return t, nil
}

// Priority controls how aggressively a communication is pulled forward.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid returns true if the priority is a known value.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Weight returns the fraction of the requested delay kept after weighting.
// It panics on an unknown priority; requests are validated before they reach the pipeline.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityUrgent:
		return 0.1
	case PriorityHigh:
		return 0.3
	case PriorityMedium:
		return 0.7
	case PriorityLow:
		return 1.0
	default:
		panic(fmt.Sprintf("unknown priority %q", string(p)))
	}
}

// ParsePriority converts a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, s)
	}
	return p, nil
}

// Status is the lifecycle state of a scheduled communication.
type Status string

const (
	StatusScheduled      Status = "scheduled"
	StatusRetryScheduled Status = "retry_scheduled"
	StatusDue            Status = "due"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
)

// IsTerminal returns true for states that end up in the history log or are dropped.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Request is a proposed outgoing communication. It is immutable once submitted.
type Request struct {
	Recipient     string         `json:"recipient"`
	Channel       Channel        `json:"channel"`
	Type          Type           `json:"type"`
	Priority      Priority       `json:"priority"`
	Message       string         `json:"message,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
	RequestedTime time.Time      `json:"requested_time"`
	Context       map[string]any `json:"context,omitempty"`
}

// Validate checks that every enumerated field holds a known value.
func (r Request) Validate() error {
	if r.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidRequest)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, r.Channel)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, r.Type)
	}
	if !r.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, r.Priority)
	}
	return nil
}

// SubmitOptions tunes how Submit treats colliding entries.
type SubmitOptions struct {
	// ReplaceExisting cancels colliding live entries instead of rejecting the request.
	ReplaceExisting bool
}

// Communication is a request owned by the scheduling engine.
type Communication struct {
	Request

	ID           uuid.UUID   `json:"id"`
	Status       Status      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	ScheduledFor time.Time   `json:"scheduled_for"`
	RetryCount   int         `json:"retry_count"`
	ExecutedAt   *time.Time  `json:"executed_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
	ExternalID   string      `json:"external_id,omitempty"`
	Dependencies []uuid.UUID `json:"dependencies"`
}

// NewCommunication creates an unscheduled communication from a request.
func NewCommunication(req Request, now time.Time) *Communication {
	return &Communication{
		Request:      req,
		ID:           uuid.New(),
		Status:       StatusScheduled,
		CreatedAt:    now,
		ScheduledFor: req.RequestedTime,
		Dependencies: []uuid.UUID{},
	}
}

// Clone returns a copy that shares no mutable state with the receiver.
func (c *Communication) Clone() *Communication {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Context != nil {
		cp.Context = make(map[string]any, len(c.Context))
		for k, v := range c.Context {
			cp.Context[k] = v
		}
	}
	if c.ExecutedAt != nil {
		t := *c.ExecutedAt
		cp.ExecutedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Dependencies = append([]uuid.UUID{}, c.Dependencies...)
	return &cp
}

// MarkDue stamps the execution time and moves the entry into the due state.
func (c *Communication) MarkDue(at time.Time) {
	c.ExecutedAt = &at
	c.Status = StatusDue
}

// MarkSucceeded records a successful delivery.
func (c *Communication) MarkSucceeded(at time.Time, externalID string) {
	c.Status = StatusSucceeded
	c.CompletedAt = &at
	c.ExternalID = externalID
	c.LastError = ""
}

// MarkFailed records a terminal delivery failure.
func (c *Communication) MarkFailed(at time.Time, reason string) {
	c.Status = StatusFailed
	c.CompletedAt = &at
	c.LastError = reason
}

// ScheduleRetry increments the retry counter and re-arms the entry at the given time.
func (c *Communication) ScheduleRetry(at time.Time, reason string) {
	c.RetryCount++
	c.Status = StatusRetryScheduled
	c.ScheduledFor = at
	c.LastError = reason
	c.ExecutedAt = nil
}

// CollidesWith reports whether another live entry occupies the same slot.
func (c *Communication) CollidesWith(recipient string, channel Channel, at time.Time, window time.Duration) bool {
	if c.Recipient != recipient || c.Channel != channel {
		return false
	}
	diff := c.ScheduledFor.Sub(at)
	if diff < 0 {
		diff = -diff
	}
	return diff < window
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
	// Simulated marks outcomes produced by a channel with no real platform behind it.
	Simulated bool `json:"simulated,omitempty"`
}

// SuccessOutcome builds a successful outcome.
func SuccessOutcome(externalID string) Outcome {
	return Outcome{Success: true, ExternalID: externalID}
}

// FailureOutcome builds a failed outcome from an error.
func FailureOutcome(err error) Outcome {
	if err == nil {
		return Outcome{Success: false, Error: "unknown delivery error"}
	}
	return Outcome{Success: false, Error: err.Error()}
}
