package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m Metrics = NoopMetrics{}

	assert.NotPanics(t, func() {
		m.Counter(MetricCommsSubmitted, 1)
		m.Gauge(MetricCommsLive, 3)
		m.Histogram(MetricOutboxLag, 0.5)
		m.Timing(MetricDeliveryDuration, time.Second)
	})
}

func TestInMemoryMetrics_CountersAndGauges(t *testing.T) {
	m := NewInMemoryMetrics()
	email := T("channel", "email")
	chat := T("channel", "chat")

	m.Counter(MetricCommsSubmitted, 1, email)
	m.Counter(MetricCommsSubmitted, 1, email)
	m.Counter(MetricCommsSubmitted, 1, chat)
	m.Gauge(MetricCommsLive, 4)
	m.Gauge(MetricCommsLive, 2)

	assert.Equal(t, int64(2), m.GetCounter(MetricCommsSubmitted, email))
	assert.Equal(t, int64(1), m.GetCounter(MetricCommsSubmitted, chat))
	assert.Equal(t, int64(0), m.GetCounter(MetricCommsSubmitted))
	assert.Equal(t, 2.0, m.GetGauge(MetricCommsLive))
}

func TestInMemoryMetrics_Samples(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Histogram(MetricOutboxLag, 1.5)
	m.Histogram(MetricOutboxLag, 3)
	m.Timing(MetricDeliveryDuration, 100*time.Millisecond)
	m.Timing(MetricDeliveryDuration, 200*time.Millisecond)

	assert.Equal(t, []float64{1.5, 3}, m.GetHistogram(MetricOutboxLag))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, m.GetTimings(MetricDeliveryDuration))

	m.Reset()
	assert.Empty(t, m.GetHistogram(MetricOutboxLag))
	assert.Empty(t, m.GetTimings(MetricDeliveryDuration))
}

func TestFormatKey(t *testing.T) {
	tests := []struct {
		name string
		tags []Tag
		want string
	}{
		{"no tags", nil, "cadence.delivery.outcomes"},
		{"single tag", []Tag{T("channel", "sms")}, "cadence.delivery.outcomes:channel=sms"},
		{
			"tags sorted by key",
			[]Tag{T("outcome", "failed"), T("channel", "sms")},
			"cadence.delivery.outcomes:channel=sms:outcome=failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatKey(MetricDeliveryOutcomes, tt.tags))
		})
	}
}

func TestFormatKey_DoesNotReorderCallerTags(t *testing.T) {
	tags := []Tag{T("outcome", "failed"), T("channel", "sms")}

	formatKey(MetricDeliveryOutcomes, tags)

	assert.Equal(t, "outcome", tags[0].Key)
}
