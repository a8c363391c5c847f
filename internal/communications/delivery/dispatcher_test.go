package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
	channel domain.Channel
}

func (m *mockSender) Channel() domain.Channel { return m.channel }

func (m *mockSender) Send(ctx context.Context, msg Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *mockSender) Probe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type panickingSender struct{ channel domain.Channel }

func (p panickingSender) Channel() domain.Channel { return p.channel }
func (p panickingSender) Send(context.Context, Message) (string, error) {
	panic("boom")
}
func (p panickingSender) Probe(context.Context) error { panic("probe boom") }

type staticResolver map[string]string

func (r staticResolver) ResolveAddress(_ context.Context, recipient string, _ domain.Channel) (string, bool) {
	addr, ok := r[recipient]
	return addr, ok
}

func newComm(channel domain.Channel, recipient string) *domain.Communication {
	return domain.NewCommunication(domain.Request{
		Recipient:     recipient,
		Channel:       channel,
		Type:          domain.TypeFollowUp,
		Priority:      domain.PriorityMedium,
		Message:       "hello",
		RequestedTime: time.Now(),
	}, time.Now())
}

func TestDispatcher_SendSuccess(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	d := NewDispatcher(DefaultDispatcherConfig(), staticResolver{"c1": "c1@example.com"}, metrics, nil)
	s := &mockSender{channel: domain.ChannelEmail}
	s.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.Address == "c1@example.com" && m.Body == "hello" && m.Subject == "Following up"
	})).Return("msg-1", nil)
	d.Register(s)

	outcome := d.Send(context.Background(), newComm(domain.ChannelEmail, "c1"))

	assert.True(t, outcome.Success)
	assert.Equal(t, "msg-1", outcome.ExternalID)
	assert.False(t, outcome.Simulated)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricDeliveryOutcomes,
		observability.T("channel", "email"), observability.T("outcome", "succeeded")))
	assert.Len(t, metrics.GetTimings(observability.MetricDeliveryDuration, observability.T("channel", "email")), 1)
	s.AssertExpectations(t)
}

func TestDispatcher_SendFailureBecomesOutcome(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), nil, nil, nil)
	s := &mockSender{channel: domain.ChannelChat}
	s.On("Send", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))
	d.Register(s)

	outcome := d.Send(context.Background(), newComm(domain.ChannelChat, "c2"))

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "rate limited")
	assert.Contains(t, outcome.Error, "chat")
}

func TestDispatcher_UnregisteredChannel(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), nil, nil, nil)

	outcome := d.Send(context.Background(), newComm(domain.ChannelVoice, "c1"))

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "channel voice unavailable")
}

func TestDispatcher_RecoversSenderPanic(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), nil, nil, nil)
	d.Register(panickingSender{channel: domain.ChannelSMS})

	var outcome domain.Outcome
	require.NotPanics(t, func() {
		outcome = d.Send(context.Background(), newComm(domain.ChannelSMS, "c1"))
	})
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "panicked")

	var results map[domain.Channel]error
	require.NotPanics(t, func() {
		results = d.ProbeAll(context.Background())
	})
	assert.Error(t, results[domain.ChannelSMS])
	assert.False(t, d.GetChannelStatus()[domain.ChannelSMS])
}

func TestDispatcher_NilCommunication(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), nil, nil, nil)
	outcome := d.Send(context.Background(), nil)
	assert.False(t, outcome.Success)
}

func TestDispatcher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = time.Hour
	d := NewDispatcher(cfg, nil, nil, nil)

	s := &mockSender{channel: domain.ChannelEnterpriseChat}
	s.On("Send", mock.Anything, mock.Anything).Return("", errors.New("down"))
	s.On("Probe", mock.Anything).Return(nil)
	d.Register(s)
	d.ProbeAll(context.Background())
	require.True(t, d.GetChannelStatus()[domain.ChannelEnterpriseChat])

	d.Send(context.Background(), newComm(domain.ChannelEnterpriseChat, "c1"))
	d.Send(context.Background(), newComm(domain.ChannelEnterpriseChat, "c1"))
	outcome := d.Send(context.Background(), newComm(domain.ChannelEnterpriseChat, "c1"))

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "unavailable")
	assert.False(t, d.GetChannelStatus()[domain.ChannelEnterpriseChat])
	s.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatcher_ProbeFailureOnlyAffectsItsChannel(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	d := NewDispatcher(DefaultDispatcherConfig(), nil, metrics, nil)

	good := &mockSender{channel: domain.ChannelEmail}
	good.On("Probe", mock.Anything).Return(nil)
	bad := &mockSender{channel: domain.ChannelChat}
	bad.On("Probe", mock.Anything).Return(errors.New("unauthorized"))
	d.Register(good)
	d.Register(bad)

	status := d.GetChannelStatus()
	assert.False(t, status[domain.ChannelEmail], "unprobed channels start disconnected")

	require.NoError(t, d.Connect(context.Background()))

	status = d.GetChannelStatus()
	assert.True(t, status[domain.ChannelEmail])
	assert.False(t, status[domain.ChannelChat])
	assert.Equal(t, 1.0, metrics.GetGauge(observability.MetricChannelConnected, observability.T("channel", "email")))
	assert.Equal(t, []domain.Channel{domain.ChannelChat, domain.ChannelEmail}, d.Channels())

	require.NoError(t, d.Close())
	assert.False(t, d.GetChannelStatus()[domain.ChannelEmail])
}

func TestDispatcher_SimulatedSender(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	d := NewDispatcher(DefaultDispatcherConfig(), nil, metrics, nil)
	d.Register(NewSimulatedSender(domain.ChannelSocialBroadcast, true, "", nil))

	c := newComm(domain.ChannelSocialBroadcast, "followers")
	outcome := d.Send(context.Background(), c)

	assert.True(t, outcome.Success)
	assert.True(t, outcome.Simulated)
	assert.Equal(t, "sim-"+c.ID.String(), outcome.ExternalID)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricDeliveryOutcomes,
		observability.T("channel", "social_broadcast"), observability.T("outcome", "simulated")))
}

func TestDispatcher_FailLoudSimulatedSender(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), nil, nil, nil)
	d.Register(NewSimulatedSender(domain.ChannelVoice, false, "", nil))

	outcome := d.Send(context.Background(), newComm(domain.ChannelVoice, "c1"))

	assert.False(t, outcome.Success)
	assert.False(t, outcome.Simulated)
	assert.Contains(t, outcome.Error, "no platform integration configured")

	results := d.ProbeAll(context.Background())
	assert.ErrorIs(t, results[domain.ChannelVoice], domain.ErrChannelUnavailable)
}

func TestNewMessage_AddressResolution(t *testing.T) {
	resolver := staticResolver{"c1": "directory@example.com"}

	c := newComm(domain.ChannelEmail, "c1")
	assert.Equal(t, "directory@example.com", NewMessage(context.Background(), c, resolver).Address)

	c.Context = map[string]any{"address": "override@example.com", "subject": "Quick one"}
	msg := NewMessage(context.Background(), c, resolver)
	assert.Equal(t, "override@example.com", msg.Address)
	assert.Equal(t, "Quick one", msg.Subject)

	unknown := newComm(domain.ChannelEmail, "someone@example.com")
	unknown.Message = ""
	msg = NewMessage(context.Background(), unknown, resolver)
	assert.Equal(t, "someone@example.com", msg.Address)
	assert.NotEmpty(t, msg.Body)
	assert.Equal(t, unknown.ID, msg.CommunicationID)
}

func TestBuildSenders(t *testing.T) {
	senders := BuildSenders(SendersConfig{
		Telegram:        TelegramConfig{Token: "123:abc"},
		SimulateUnwired: true,
	}, nil)

	require.Len(t, senders, len(domain.AllChannels()))
	byChannel := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}

	assert.IsType(t, &TelegramSender{}, byChannel[domain.ChannelChat])
	assert.IsType(t, &SimulatedSender{}, byChannel[domain.ChannelEmail])
	assert.IsType(t, &SimulatedSender{}, byChannel[domain.ChannelEnterpriseChat])
	assert.IsType(t, &SimulatedSender{}, byChannel[domain.ChannelSMS])

	full := BuildSenders(SendersConfig{
		Gmail: GmailConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"},
		Slack: SlackConfig{BotToken: "xoxb-1"},
	}, nil)
	for _, s := range full {
		switch s.Channel() {
		case domain.ChannelEmail:
			assert.IsType(t, &GmailSender{}, s)
		case domain.ChannelEnterpriseChat:
			assert.IsType(t, &SlackSender{}, s)
		}
	}
}

func TestDispatcher_ExternalIDIsUnique(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), nil, nil, nil)
	d.Register(NewSimulatedSender(domain.ChannelSMS, true, "", nil))

	a := d.Send(context.Background(), newComm(domain.ChannelSMS, "c1"))
	b := d.Send(context.Background(), newComm(domain.ChannelSMS, "c1"))
	assert.NotEqual(t, a.ExternalID, b.ExternalID)
	_, err := uuid.Parse(a.ExternalID[len("sim-"):])
	assert.NoError(t, err)
}
