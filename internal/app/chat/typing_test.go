package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chatline/internal/app/user"
)

func TestTypingTracker_SetAndUnset(t *testing.T) {
	tr := NewTypingTracker()

	tr.Set("admin", user.RoleAdmin, true)
	tr.Set("receiver", user.RoleReceiver, true)
	assert.Equal(t, []TypingEntry{
		{Username: "admin", Role: user.RoleAdmin},
		{Username: "receiver", Role: user.RoleReceiver},
	}, tr.Snapshot())

	tr.Set("admin", user.RoleAdmin, false)
	assert.Equal(t, []TypingEntry{{Username: "receiver", Role: user.RoleReceiver}}, tr.Snapshot())
}

func TestTypingTracker_RepeatedStartKeepsOneEntry(t *testing.T) {
	tr := NewTypingTracker()

	assert.True(t, tr.Set("admin", user.RoleAdmin, true))
	assert.True(t, tr.Set("receiver", user.RoleReceiver, true))
	assert.False(t, tr.Set("admin", user.RoleAdmin, true))

	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, "admin", tr.Snapshot()[1].Username)
}

func TestTypingTracker_StopForUnknownUserIsNoop(t *testing.T) {
	tr := NewTypingTracker()
	tr.Set("admin", user.RoleAdmin, true)

	assert.False(t, tr.Set("ghost", user.RoleReceiver, false))
	assert.Equal(t, 1, tr.Len())

	tr.Clear()
	assert.Equal(t, 0, tr.Len())
}
