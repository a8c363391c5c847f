package queries

import (
	"context"
	"sort"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
)

// ChannelStatusSource reports per-channel connectivity.
type ChannelStatusSource interface {
	GetChannelStatus() map[domain.Channel]bool
}

// ChannelRefresher re-checks per-channel connectivity on demand.
type ChannelRefresher interface {
	ProbeAll(ctx context.Context) map[domain.Channel]error
}

// ChannelStatusDTO is one channel's connectivity.
type ChannelStatusDTO struct {
	Channel   string `json:"channel"`
	Connected bool   `json:"connected"`
}

// ChannelStatusHandler lists channel connectivity in a stable order.
type ChannelStatusHandler struct {
	source  ChannelStatusSource
	running func() bool
}

// NewChannelStatusHandler creates a new ChannelStatusHandler. When running is
// nil or reports false and the source is a ChannelRefresher, Handle re-checks
// every channel first, so one-shot processes report real connectivity.
func NewChannelStatusHandler(source ChannelStatusSource, running func() bool) *ChannelStatusHandler {
	return &ChannelStatusHandler{source: source, running: running}
}

// Handle returns every known channel, including those never checked.
func (h *ChannelStatusHandler) Handle(ctx context.Context) ([]ChannelStatusDTO, error) {
	if refresher, ok := h.source.(ChannelRefresher); ok && (h.running == nil || !h.running()) {
		refresher.ProbeAll(ctx)
	}
	status := h.source.GetChannelStatus()
	result := make([]ChannelStatusDTO, 0, len(domain.AllChannels()))
	for _, ch := range domain.AllChannels() {
		result = append(result, ChannelStatusDTO{Channel: string(ch), Connected: status[ch]})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Channel < result[j].Channel })
	return result, nil
}
