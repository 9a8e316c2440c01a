package executor

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewGatewayDedupTTL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	g := NewGateway(nil, nil, nil, nil, 5*time.Second, logger)
	assert.Equal(t, 5*time.Second, g.dedup.ttl)

	// Zero falls back to the default window.
	g = NewGateway(nil, nil, nil, nil, 0, logger)
	assert.Equal(t, 2*time.Minute, g.dedup.ttl)
}
