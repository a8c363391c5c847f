package domain

import (
	"math/rand/v2"
	"time"
)

// Clock supplies the current time. Tests replace it to drive simulated time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// JitterSource returns a random offset in [0, max].
type JitterSource interface {
	Jitter(max time.Duration) time.Duration
}

// RandomJitter draws offsets from math/rand.
type RandomJitter struct{}

func (RandomJitter) Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

// Rule is one stage of the timing pipeline.
type Rule interface {
	Name() string
	Apply(now, candidate time.Time, c *Communication) time.Time
}

// RuleConfig holds the tunables of the default pipeline.
type RuleConfig struct {
	BusinessHoursStart int
	BusinessHoursEnd   int
	SpacingJitterMax   time.Duration
}

// DefaultRuleConfig returns a 09:00-17:00 day with up to 30 minutes of spacing jitter.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		BusinessHoursStart: 9,
		BusinessHoursEnd:   17,
		SpacingJitterMax:   30 * time.Minute,
	}
}

// RulePipeline applies its stages in order, each receiving the previous stage's output.
type RulePipeline struct {
	rules []Rule
}

// NewRulePipeline creates a pipeline from explicit stages.
func NewRulePipeline(rules ...Rule) *RulePipeline {
	return &RulePipeline{rules: rules}
}

// NewDefaultRulePipeline builds the five standard stages.
func NewDefaultRulePipeline(cfg RuleConfig, jitter JitterSource) *RulePipeline {
	if jitter == nil {
		jitter = RandomJitter{}
	}
	return NewRulePipeline(
		PriorityWeightRule{},
		AvailabilityRule{Start: cfg.BusinessHoursStart, End: cfg.BusinessHoursEnd},
		ChannelRule{},
		SpacingRule{Max: cfg.SpacingJitterMax, Jitter: jitter},
		WeekendRule{Start: cfg.BusinessHoursStart},
	)
}

// Apply runs every stage over the requested time.
func (p *RulePipeline) Apply(now, requested time.Time, c *Communication) time.Time {
	candidate := requested
	for _, rule := range p.rules {
		candidate = rule.Apply(now, candidate, c)
	}
	return candidate
}

// Rules returns the stage names in execution order.
func (p *RulePipeline) Rules() []string {
	names := make([]string, 0, len(p.rules))
	for _, rule := range p.rules {
		names = append(names, rule.Name())
	}
	return names
}

// PriorityWeightRule shrinks the delay from now by the priority weight.
// The delay is measured from the wall clock at call time, so re-running it later drifts.
type PriorityWeightRule struct{}

func (PriorityWeightRule) Name() string { return "priority" }

func (PriorityWeightRule) Apply(now, candidate time.Time, c *Communication) time.Time {
	delay := candidate.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return now.Add(time.Duration(float64(delay) * c.Priority.Weight()))
}

// AvailabilityRule moves times outside the recipient's day to its start.
type AvailabilityRule struct {
	Start int
	End   int
}

func (AvailabilityRule) Name() string { return "availability" }

func (r AvailabilityRule) Apply(_, candidate time.Time, _ *Communication) time.Time {
	switch h := candidate.Hour(); {
	case h < r.Start:
		return atHour(candidate, r.Start)
	case h >= r.End:
		return atHour(candidate.AddDate(0, 0, 1), r.Start)
	default:
		return candidate
	}
}

// ChannelRule applies per-platform offsets.
type ChannelRule struct{}

func (ChannelRule) Name() string { return "channel" }

func (ChannelRule) Apply(_, candidate time.Time, c *Communication) time.Time {
	switch c.Channel {
	case ChannelEnterpriseChat:
		return candidate.Add(2 * time.Hour)
	case ChannelSMS:
		if candidate.Hour() < 10 {
			return candidate.Add(time.Hour)
		}
	case ChannelVoice:
		if candidate.Hour() < 11 {
			return candidate.Add(2 * time.Hour)
		}
	}
	return candidate
}

// SpacingRule spreads high-priority sends with a random offset.
type SpacingRule struct {
	Max    time.Duration
	Jitter JitterSource
}

func (SpacingRule) Name() string { return "spacing" }

func (r SpacingRule) Apply(_, candidate time.Time, c *Communication) time.Time {
	if c.Priority != PriorityHigh || r.Jitter == nil {
		return candidate
	}
	return candidate.Add(r.Jitter.Jitter(r.Max))
}

// WeekendRule moves Saturday and Sunday to Monday morning.
type WeekendRule struct {
	Start int
}

func (WeekendRule) Name() string { return "business_days" }

func (r WeekendRule) Apply(_, candidate time.Time, _ *Communication) time.Time {
	switch candidate.Weekday() {
	case time.Saturday:
		return atHour(candidate.AddDate(0, 0, 2), r.Start)
	case time.Sunday:
		return atHour(candidate.AddDate(0, 0, 1), r.Start)
	default:
		return candidate
	}
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
