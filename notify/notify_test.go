package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport returns errs[i] on the i-th attempt (nil once exhausted)
// and records when each attempt happened.
type scriptedTransport struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	errs      []error
	attempts  []time.Time
	msgs      []Message
	factories int
}

func (s *scriptedTransport) factory() (Transport, error) {
	s.mu.Lock()
	s.factories++
	s.mu.Unlock()
	return &attemptTransport{parent: s}, nil
}

type attemptTransport struct{ parent *scriptedTransport }

func (a *attemptTransport) Send(_ context.Context, msg Message) error {
	s := a.parent
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.attempts)
	s.attempts = append(s.attempts, s.clock.Now())
	s.msgs = append(s.msgs, msg)
	if i < len(s.errs) {
		return s.errs[i]
	}
	return nil
}

func (s *scriptedTransport) snapshot() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.attempts...)
}

func delivery() error { return &DeliveryError{Err: errors.New("Bad Gateway")} }

func TestSend_SucceedsFirstTry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := &scriptedTransport{clock: clock}
	s := NewSender(tr.factory)
	s.Clock = clock

	ok := s.Send(context.Background(), Message{ChatID: 1, Text: "hi", ParseMode: ParseModeHTML})
	assert.True(t, ok)
	assert.Len(t, tr.snapshot(), 1)
	assert.Equal(t, ParseModeHTML, tr.msgs[0].ParseMode)
}

func TestSend_RetriesWithExponentialBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	start := clock.Now()
	tr := &scriptedTransport{clock: clock, errs: []error{delivery(), delivery()}}
	s := NewSender(tr.factory)
	s.Clock = clock

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan bool, 1)
	go func() { done <- s.Send(ctx, Message{ChatID: 42, Text: "live"}) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(1 * time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-ctx.Done():
		t.Fatal("Send did not return")
	}

	attempts := tr.snapshot()
	require.Len(t, attempts, 3)
	assert.Equal(t, start, attempts[0])
	assert.Equal(t, 1*time.Second, attempts[1].Sub(attempts[0]))
	assert.Equal(t, 2*time.Second, attempts[2].Sub(attempts[1]))
	// one fresh transport per attempt
	assert.Equal(t, 3, tr.factories)
}

func TestSend_GivesUpAfterMaxRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := &scriptedTransport{clock: clock, errs: []error{delivery(), delivery(), delivery(), delivery(), delivery()}}
	s := NewSender(tr.factory)
	s.Clock = clock

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan bool, 1)
	go func() { done <- s.Send(ctx, Message{ChatID: 1, Text: "x"}) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(1 * time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-ctx.Done():
		t.Fatal("Send did not return")
	}
	assert.Len(t, tr.snapshot(), 3)
}

func TestSend_UnexpectedErrorAbortsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := &scriptedTransport{clock: clock, errs: []error{errors.New("json: cannot unmarshal")}}
	s := NewSender(tr.factory)
	s.Clock = clock

	assert.False(t, s.Send(context.Background(), Message{ChatID: 1, Text: "x"}))
	assert.Len(t, tr.snapshot(), 1)
}

func TestSend_FactoryErrorAborts(t *testing.T) {
	calls := 0
	s := NewSender(func() (Transport, error) {
		calls++
		return nil, errors.New("bad proxy url")
	})
	s.Clock = clockwork.NewFakeClock()

	assert.False(t, s.Send(context.Background(), Message{ChatID: 1, Text: "x"}))
	assert.Equal(t, 1, calls)
}

func TestSend_CanceledDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := &scriptedTransport{clock: clock, errs: []error{delivery(), delivery()}}
	s := NewSender(tr.factory)
	s.Clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- s.Send(ctx, Message{ChatID: 1, Text: "x"}) }()

	wait, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(wait, 1))
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-wait.Done():
		t.Fatal("Send did not return")
	}
	assert.Len(t, tr.snapshot(), 1)
}

func TestSendText(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := &scriptedTransport{clock: clock}
	s := NewSender(tr.factory)

	assert.True(t, s.SendText(context.Background(), -100, "plain"))
	require.Len(t, tr.msgs, 1)
	assert.Equal(t, Message{ChatID: -100, Text: "plain", DisablePreview: true}, tr.msgs[0])
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0))
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
}
