package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/metrics"
)

type fakeIngester struct {
	mu       sync.Mutex
	payloads []domain.StatsPayload
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, payload domain.StatsPayload) (*domain.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payload.PlayerName == "" {
		return nil, domain.ErrMissingPlayerName
	}
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &domain.IngestResult{Timestamp: time.Now(), Player: payload.PlayerName}, nil
}

// fakeSession records marked offsets; other session methods are unused
type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newTestConsumer(ingester Ingester) *Consumer {
	return &Consumer{
		config:   &config.KafkaConfig{Topic: "player-stats", HandlerTimeout: time.Second},
		ingester: ingester,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestConsumeClaim(t *testing.T) {
	ingester := &fakeIngester{}
	consumer := newTestConsumer(ingester)
	handler := &consumerGroupHandler{consumer: consumer}

	values := []string{
		`{"player_name":"Luffy","level":500,"beli":100000}`,
		`not json`,
		`{"level":3}`,
		`{"player_name":"Zoro","unknown":true}`,
		`{"player_name":"Zoro","fighting_styles":{"owned":["Santoryu"]}}`,
	}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(values))}
	for i, v := range values {
		claim.messages <- &sarama.ConsumerMessage{Topic: "player-stats", Offset: int64(i), Value: []byte(v)}
	}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{0, 1, 2, 3, 4}, session.marked)
	require.Len(t, ingester.payloads, 2)
	assert.Equal(t, "Luffy", ingester.payloads[0].PlayerName)
	assert.EqualValues(t, 500, ingester.payloads[0].Level)
	assert.Equal(t, "Zoro", ingester.payloads[1].PlayerName)
	require.NotNil(t, ingester.payloads[1].FightingStyles)
	assert.Equal(t, []string{"Santoryu"}, ingester.payloads[1].FightingStyles.Owned)
}

func TestConsumeClaimStopsOnSessionEnd(t *testing.T) {
	handler := &consumerGroupHandler{consumer: newTestConsumer(&fakeIngester{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan error, 1)
	go func() { done <- handler.ConsumeClaim(session, claim) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return after the session ended")
	}
}

func TestHandleMessageResults(t *testing.T) {
	tests := []struct {
		name  string
		value string
		err   error
		want  string
	}{
		{name: "valid", value: `{"player_name":"Nami"}`, want: metrics.ResultIngested},
		{name: "malformed", value: `{"player_name":`, want: metrics.ResultInvalid},
		{name: "trailing data", value: `{"player_name":"Nami"} {}`, want: metrics.ResultInvalid},
		{name: "missing name", value: `{"player_name":""}`, want: metrics.ResultInvalid},
		{name: "storage failure", value: `{"player_name":"Nami"}`, err: domain.NewStorageError("saving snapshot", errors.New("disk full")), want: metrics.ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := newTestConsumer(&fakeIngester{err: tt.err})
			got := consumer.handleMessage(&sarama.ConsumerMessage{Value: []byte(tt.value)})
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeGroup runs consume for every Consume call; other group methods are unused
type fakeGroup struct {
	sarama.ConsumerGroup
	consume func(ctx context.Context, call int32, handler sarama.ConsumerGroupHandler) error
	calls   atomic.Int32
	closed  atomic.Bool
	errors  chan error
}

func newFakeGroup(consume func(ctx context.Context, call int32, handler sarama.ConsumerGroupHandler) error) *fakeGroup {
	return &fakeGroup{consume: consume, errors: make(chan error)}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	return g.consume(ctx, g.calls.Add(1), handler)
}

func (g *fakeGroup) Errors() <-chan error { return g.errors }

func (g *fakeGroup) Close() error {
	g.closed.Store(true)
	return nil
}

func newGroupConsumer(group sarama.ConsumerGroup, startTimeout, backoff time.Duration) *Consumer {
	cfg := &config.KafkaConfig{Topic: "player-stats", HandlerTimeout: time.Second, StartTimeout: startTimeout}
	c := newConsumer(cfg, group, &fakeIngester{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.retryBackoff = backoff
	return c
}

// startWithin runs Start and fails the test when it does not return in time
func startWithin(t *testing.T, c *Consumer, d time.Duration) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Start() }()

	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatal("Start did not return")
		return nil
	}
}

func stopWithin(t *testing.T, c *Consumer, d time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Stop() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(d):
		t.Fatal("Stop did not return")
	}
}

func TestStartFailsWhenConsumeFails(t *testing.T) {
	group := newFakeGroup(func(context.Context, int32, sarama.ConsumerGroupHandler) error {
		return errors.New("kafka: topic does not exist")
	})
	consumer := newGroupConsumer(group, 10*time.Second, 10*time.Millisecond)

	err := startWithin(t, consumer, 2*time.Second)
	require.Error(t, err)
	assert.ErrorContains(t, err, "topic does not exist")

	calls := group.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, group.calls.Load(), "Consume retried after Start gave up")

	stopWithin(t, consumer, time.Second)
	assert.True(t, group.closed.Load())
}

func TestStartTimesOutWithoutSession(t *testing.T) {
	group := newFakeGroup(func(ctx context.Context, _ int32, _ sarama.ConsumerGroupHandler) error {
		<-ctx.Done()
		return nil
	})
	consumer := newGroupConsumer(group, 50*time.Millisecond, 10*time.Millisecond)

	err := startWithin(t, consumer, 2*time.Second)
	assert.ErrorContains(t, err, "not ready")

	stopWithin(t, consumer, time.Second)
}

func TestStartRetriesAfterSessionError(t *testing.T) {
	rejoined := make(chan struct{})
	group := newFakeGroup(func(ctx context.Context, call int32, handler sarama.ConsumerGroupHandler) error {
		if call == 1 {
			_ = handler.Setup(nil)
			return errors.New("rebalance failed")
		}
		if call == 2 {
			close(rejoined)
		}
		<-ctx.Done()
		return nil
	})
	consumer := newGroupConsumer(group, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, startWithin(t, consumer, 2*time.Second))

	select {
	case <-rejoined:
	case <-time.After(time.Second):
		t.Fatal("consumer did not rejoin the group")
	}

	stopWithin(t, consumer, time.Second)
}

func TestStopInterruptsRetryBackoff(t *testing.T) {
	group := newFakeGroup(func(_ context.Context, call int32, handler sarama.ConsumerGroupHandler) error {
		if call == 1 {
			_ = handler.Setup(nil)
		}
		return errors.New("broker unavailable")
	})
	consumer := newGroupConsumer(group, 2*time.Second, time.Hour)

	require.NoError(t, startWithin(t, consumer, 2*time.Second))
	stopWithin(t, consumer, time.Second)
	assert.EqualValues(t, 1, group.calls.Load())
}
