package queries

import (
	"context"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// LiveReader exposes the engine's live and in-flight snapshots.
type LiveReader interface {
	Live() []*domain.Communication
	InFlight() []*domain.Communication
	Get(id uuid.UUID) (*domain.Communication, bool)
}

// ListLiveQuery contains the parameters for listing pending communications.
type ListLiveQuery struct {
	Recipient       string
	Channel         string
	IncludeInFlight bool
}

// ListLiveHandler handles the ListLiveQuery.
type ListLiveHandler struct {
	reader LiveReader
}

// NewListLiveHandler creates a new ListLiveHandler.
func NewListLiveHandler(reader LiveReader) *ListLiveHandler {
	return &ListLiveHandler{reader: reader}
}

// Handle executes the ListLiveQuery. Results are ordered by ScheduledFor,
// live entries before in-flight ones.
func (h *ListLiveHandler) Handle(ctx context.Context, query ListLiveQuery) ([]CommunicationDTO, error) {
	comms := h.reader.Live()
	if query.IncludeInFlight {
		comms = append(comms, h.reader.InFlight()...)
	}

	filtered := comms[:0]
	for _, c := range comms {
		if query.Recipient != "" && c.Recipient != query.Recipient {
			continue
		}
		if query.Channel != "" && string(c.Channel) != query.Channel {
			continue
		}
		filtered = append(filtered, c)
	}
	return toDTOs(filtered), nil
}
