package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupBlocksWithinTTL(t *testing.T) {
	d := NewDedup(time.Minute)

	assert.False(t, d.IsDuplicate("pos-1"))
	assert.True(t, d.IsDuplicate("pos-1"))
	assert.False(t, d.IsDuplicate("pos-2"))
}

func TestDedupForgetAllowsRetry(t *testing.T) {
	d := NewDedup(time.Minute)

	assert.False(t, d.IsDuplicate("pos-1"))
	d.Forget("pos-1")
	assert.False(t, d.IsDuplicate("pos-1"))
}

func TestDedupExpiry(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	assert.False(t, d.IsDuplicate("pos-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, d.IsDuplicate("pos-1"))
}

func TestDedupCleanup(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	d.IsDuplicate("pos-1")
	d.IsDuplicate("pos-2")
	time.Sleep(20 * time.Millisecond)
	d.Cleanup()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.seen)
}
