package queries

import (
	"context"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
)

// GetCommunicationQuery looks a communication up wherever it currently lives.
type GetCommunicationQuery struct {
	ID uuid.UUID
}

// GetCommunicationHandler handles the GetCommunicationQuery.
type GetCommunicationHandler struct {
	reader  LiveReader
	history domain.HistoryRepository
}

// NewGetCommunicationHandler creates a new GetCommunicationHandler.
func NewGetCommunicationHandler(reader LiveReader, history domain.HistoryRepository) *GetCommunicationHandler {
	return &GetCommunicationHandler{reader: reader, history: history}
}

// Handle executes the GetCommunicationQuery, checking live entries before history.
func (h *GetCommunicationHandler) Handle(ctx context.Context, query GetCommunicationQuery) (*CommunicationDTO, error) {
	if c, ok := h.reader.Get(query.ID); ok {
		dto := ToDTO(c)
		return &dto, nil
	}
	c, err := h.history.FindByID(ctx, query.ID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(c)
	return &dto, nil
}
