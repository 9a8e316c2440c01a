package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMessage struct {
	recipient string
	title     string
}

// captureSender records every delivery and can be made to fail.
type captureSender struct {
	name string
	err  error
	sent []capturedMessage
}

func (s *captureSender) Send(_ context.Context, recipient, title, _ string) error {
	s.sent = append(s.sent, capturedMessage{recipient: recipient, title: title})
	return s.err
}

func (s *captureSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyAddressesOwner(t *testing.T) {
	sender := &captureSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventPositionClosed, 42, "closed", "details"))
	require.NoError(t, n.Notify(context.Background(), EventPositionClosed, 99, "closed", "details"))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "42", sender.sent[0].recipient)
	assert.Equal(t, "99", sender.sent[1].recipient)
}

func TestNotifyAllUsesDefaultDestination(t *testing.T) {
	sender := &captureSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "alert", "details"))

	require.Len(t, sender.sent, 1)
	assert.Empty(t, sender.sent[0].recipient)
}

func TestNotifyHonorsEventFilter(t *testing.T) {
	sender := &captureSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{EventPositionClosed}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventExitFailed, 42, "failed", "details"))
	assert.Empty(t, sender.sent)

	require.NoError(t, n.Notify(context.Background(), EventPositionClosed, 42, "closed", "details"))
	assert.Len(t, sender.sent, 1)
}

func TestNotifyIsolatesSenderFailures(t *testing.T) {
	broken := &captureSender{name: "telegram", err: errors.New("502")}
	healthy := &captureSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.Notify(context.Background(), EventPositionClosed, 42, "closed", "details")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	// The healthy sender still received the message.
	assert.Len(t, healthy.sent, 1)
	assert.Equal(t, "42", healthy.sent[0].recipient)
}
