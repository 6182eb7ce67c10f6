// ABOUTME: Tests for the intent guard's consume-once and TTL semantics

package ephemeral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuard_Consume_Unmarked(t *testing.T) {
	guard := NewGuard(5*time.Minute, 100)
	defer guard.Close()

	assert.False(t, guard.Consume("channel-1", ActionJoiningChannel))
}

func TestGuard_Consume_ConsumesOnce(t *testing.T) {
	guard := NewGuard(5*time.Minute, 100)
	defer guard.Close()

	guard.Mark("channel-1", ActionJoiningChannel)

	// First echo matches the mark, second does not.
	assert.True(t, guard.Consume("channel-1", ActionJoiningChannel))
	assert.False(t, guard.Consume("channel-1", ActionJoiningChannel))
}

func TestGuard_ActionsAreIndependent(t *testing.T) {
	guard := NewGuard(5*time.Minute, 100)
	defer guard.Close()

	guard.Mark("channel-1", ActionJoiningChannel)

	assert.False(t, guard.Consume("channel-1", ActionLeavingChannel))
	assert.True(t, guard.Consume("channel-1", ActionJoiningChannel))
}

func TestGuard_Consume_Expired(t *testing.T) {
	guard := NewGuard(10*time.Millisecond, 100)
	defer guard.Close()

	guard.Mark("channel-1", ActionArchivingChannel)
	time.Sleep(20 * time.Millisecond)

	// An expired mark must never suppress a later genuine event.
	assert.False(t, guard.Consume("channel-1", ActionArchivingChannel))
}

func TestGuard_Check_DoesNotConsume(t *testing.T) {
	guard := NewGuard(5*time.Minute, 100)
	defer guard.Close()

	guard.Mark("thread-1", ActionFollowingThread)

	assert.True(t, guard.Check("thread-1", ActionFollowingThread))
	assert.True(t, guard.Consume("thread-1", ActionFollowingThread))
}

func TestGuard_EvictsOldestAtCapacity(t *testing.T) {
	guard := NewGuard(5*time.Minute, 2)
	defer guard.Close()

	guard.Mark("a", ActionJoiningChannel)
	guard.Mark("b", ActionJoiningChannel)
	guard.Mark("c", ActionJoiningChannel)

	assert.False(t, guard.Check("a", ActionJoiningChannel))
	assert.True(t, guard.Check("b", ActionJoiningChannel))
	assert.True(t, guard.Check("c", ActionJoiningChannel))
}

func TestGuard_RemarkRefreshes(t *testing.T) {
	guard := NewGuard(5*time.Minute, 2)
	defer guard.Close()

	guard.Mark("a", ActionJoiningChannel)
	guard.Mark("b", ActionJoiningChannel)
	guard.Mark("a", ActionJoiningChannel)
	guard.Mark("c", ActionJoiningChannel)

	// Re-marking "a" moved it to the back, so "b" was the eviction victim.
	assert.True(t, guard.Check("a", ActionJoiningChannel))
	assert.False(t, guard.Check("b", ActionJoiningChannel))
}

func TestGuard_Close_Idempotent(t *testing.T) {
	guard := NewGuard(time.Minute, 10)
	guard.Close()
	guard.Close()
}
