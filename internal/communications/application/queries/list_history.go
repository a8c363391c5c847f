package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
)

// ListHistoryQuery contains the parameters for listing completed communications.
type ListHistoryQuery struct {
	Recipient  string
	Status     string // "succeeded" or "failed"
	SinceHours int
	Limit      int
}

// ListHistoryHandler handles the ListHistoryQuery.
type ListHistoryHandler struct {
	history domain.HistoryRepository
	clock   domain.Clock
}

// NewListHistoryHandler creates a new ListHistoryHandler.
func NewListHistoryHandler(history domain.HistoryRepository, clock domain.Clock) *ListHistoryHandler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ListHistoryHandler{history: history, clock: clock}
}

// Handle executes the ListHistoryQuery.
func (h *ListHistoryHandler) Handle(ctx context.Context, query ListHistoryQuery) ([]CommunicationDTO, error) {
	filter := domain.HistoryFilter{
		Recipient: query.Recipient,
		Status:    domain.Status(query.Status),
		Limit:     query.Limit,
	}
	if query.SinceHours > 0 {
		filter.Since = h.clock.Now().Add(-time.Duration(query.SinceHours) * time.Hour)
	}

	comms, err := h.history.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return toDTOs(comms), nil
}
