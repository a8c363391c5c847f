package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

type fixedJitter time.Duration

func (j fixedJitter) Jitter(max time.Duration) time.Duration {
	if time.Duration(j) > max {
		return max
	}
	return time.Duration(j)
}

// 2024-06-04 is a Tuesday, 2024-06-08 a Saturday.
func tuesdayAt(hour, minute int) time.Time {
	return time.Date(2024, time.June, 4, hour, minute, 0, 0, time.UTC)
}

func newTestCommunication(channel Channel, priority Priority) *Communication {
	return NewCommunication(Request{
		Recipient: "c1",
		Channel:   channel,
		Type:      TypeFollowUp,
		Priority:  priority,
	}, tuesdayAt(8, 0))
}

func TestPriorityWeightRule(t *testing.T) {
	now := tuesdayAt(10, 0)
	requested := now.Add(10 * time.Hour)

	tests := []struct {
		priority Priority
		want     time.Time
	}{
		{PriorityUrgent, now.Add(time.Hour)},
		{PriorityHigh, now.Add(3 * time.Hour)},
		{PriorityMedium, now.Add(7 * time.Hour)},
		{PriorityLow, requested},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			got := PriorityWeightRule{}.Apply(now, requested, newTestCommunication(ChannelEmail, tt.priority))
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("past time clamps to now", func(t *testing.T) {
		got := PriorityWeightRule{}.Apply(now, now.Add(-time.Hour), newTestCommunication(ChannelEmail, PriorityLow))
		assert.Equal(t, now, got)
	})
}

func TestPriorityWeight_PanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { Priority("whenever").Weight() })
}

func TestAvailabilityRule(t *testing.T) {
	rule := AvailabilityRule{Start: 9, End: 17}
	c := newTestCommunication(ChannelEmail, PriorityLow)

	assert.Equal(t, tuesdayAt(9, 0), rule.Apply(time.Time{}, tuesdayAt(7, 30), c))
	assert.Equal(t, tuesdayAt(13, 15), rule.Apply(time.Time{}, tuesdayAt(13, 15), c))
	assert.Equal(t, tuesdayAt(9, 0).AddDate(0, 0, 1), rule.Apply(time.Time{}, tuesdayAt(17, 0), c))
	assert.Equal(t, tuesdayAt(9, 0).AddDate(0, 0, 1), rule.Apply(time.Time{}, tuesdayAt(22, 45), c))
}

func TestChannelRule(t *testing.T) {
	tests := []struct {
		name      string
		channel   Channel
		candidate time.Time
		want      time.Time
	}{
		{"email unchanged", ChannelEmail, tuesdayAt(9, 0), tuesdayAt(9, 0)},
		{"chat unchanged", ChannelChat, tuesdayAt(9, 0), tuesdayAt(9, 0)},
		{"social unchanged", ChannelSocialBroadcast, tuesdayAt(9, 0), tuesdayAt(9, 0)},
		{"enterprise chat shifted", ChannelEnterpriseChat, tuesdayAt(10, 0), tuesdayAt(12, 0)},
		{"sms early shifted", ChannelSMS, tuesdayAt(9, 30), tuesdayAt(10, 30)},
		{"sms late unchanged", ChannelSMS, tuesdayAt(10, 0), tuesdayAt(10, 0)},
		{"voice early shifted", ChannelVoice, tuesdayAt(10, 0), tuesdayAt(12, 0)},
		{"voice late unchanged", ChannelVoice, tuesdayAt(11, 0), tuesdayAt(11, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChannelRule{}.Apply(time.Time{}, tt.candidate, newTestCommunication(tt.channel, PriorityLow))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpacingRule_OnlyHighPriority(t *testing.T) {
	rule := SpacingRule{Max: 30 * time.Minute, Jitter: fixedJitter(12 * time.Minute)}

	high := rule.Apply(time.Time{}, tuesdayAt(10, 0), newTestCommunication(ChannelEmail, PriorityHigh))
	assert.Equal(t, tuesdayAt(10, 12), high)

	medium := rule.Apply(time.Time{}, tuesdayAt(10, 0), newTestCommunication(ChannelEmail, PriorityMedium))
	assert.Equal(t, tuesdayAt(10, 0), medium)
}

func TestWeekendRule(t *testing.T) {
	rule := WeekendRule{Start: 9}
	c := newTestCommunication(ChannelEmail, PriorityLow)
	monday := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, monday, rule.Apply(time.Time{}, time.Date(2024, time.June, 8, 14, 0, 0, 0, time.UTC), c))
	assert.Equal(t, monday, rule.Apply(time.Time{}, time.Date(2024, time.June, 9, 20, 0, 0, 0, time.UTC), c))
	assert.Equal(t, tuesdayAt(15, 0), rule.Apply(time.Time{}, tuesdayAt(15, 0), c))
}

func TestDefaultPipeline_SaturdayMovesToMonday(t *testing.T) {
	pipeline := NewDefaultRulePipeline(DefaultRuleConfig(), fixedJitter(20*time.Minute))
	saturday := time.Date(2024, time.June, 8, 14, 0, 0, 0, time.UTC)
	monday := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)

	for _, p := range []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow} {
		got := pipeline.Apply(saturday, saturday, newTestCommunication(ChannelEmail, p))
		assert.Equal(t, monday, got, "priority %s", p)
	}
}

func TestDefaultPipeline_LowPriorityTuesdayUnchanged(t *testing.T) {
	pipeline := NewDefaultRulePipeline(DefaultRuleConfig(), fixedJitter(0))
	now := tuesdayAt(10, 0)

	got := pipeline.Apply(now, now, newTestCommunication(ChannelEmail, PriorityLow))
	assert.Equal(t, now, got)
}

func TestDefaultPipeline_StageOrder(t *testing.T) {
	pipeline := NewDefaultRulePipeline(DefaultRuleConfig(), nil)
	assert.Equal(t, []string{"priority", "availability", "channel", "spacing", "business_days"}, pipeline.Rules())
}

func TestProperty_UrgentKeepsAtMostTenPercentOfDelay(t *testing.T) {
	pipeline := NewDefaultRulePipeline(DefaultRuleConfig(), fixedJitter(0))
	now := tuesdayAt(10, 0)

	rapid.Check(t, func(rt *rapid.T) {
		minutes := rapid.IntRange(0, 60*60).Draw(rt, "delay_minutes")
		delay := time.Duration(minutes) * time.Minute

		got := pipeline.Apply(now, now.Add(delay), newTestCommunication(ChannelEmail, PriorityUrgent))
		if got.Sub(now) > delay/10+time.Nanosecond {
			rt.Fatalf("urgent delay %s exceeds 10%% of %s", got.Sub(now), delay)
		}
	})
}

func TestProperty_PipelineNeverLandsOnWeekendOrInPast(t *testing.T) {
	pipeline := NewDefaultRulePipeline(DefaultRuleConfig(), RandomJitter{})
	base := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(rt *rapid.T) {
		now := base.Add(time.Duration(rapid.IntRange(0, 14*24*60).Draw(rt, "now_minutes")) * time.Minute)
		requested := now.Add(time.Duration(rapid.IntRange(-24*60, 14*24*60).Draw(rt, "offset_minutes")) * time.Minute)
		channel := rapid.SampledFrom(AllChannels()).Draw(rt, "channel")
		priority := rapid.SampledFrom([]Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}).Draw(rt, "priority")

		got := pipeline.Apply(now, requested, newTestCommunication(channel, priority))
		if got.Before(now) {
			rt.Fatalf("scheduled %s before now %s", got, now)
		}
		if wd := got.Weekday(); wd == time.Saturday || wd == time.Sunday {
			rt.Fatalf("scheduled on %s: %s", wd, got)
		}
	})
}
