package scheduledpost

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusRetry, StatusProcessing},
		{StatusRetry, StatusCancelled},
		{StatusProcessing, StatusPublished},
		{StatusProcessing, StatusRetry},
		{StatusProcessing, StatusFailed},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusPending, StatusPublished},
		{StatusProcessing, StatusCancelled},
		{StatusPublished, StatusPending},
		{StatusFailed, StatusRetry},
		{StatusCancelled, StatusPending},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusPublished, StatusFailed, StatusCancelled} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.IsActive())
		assert.Empty(t, transitions[s])
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := ScheduledPost{Status: StatusPending, ScheduledTime: now}
	assert.True(t, entry.IsDue(now))

	entry.ScheduledTime = now.Add(time.Second)
	assert.False(t, entry.IsDue(now))

	entry.ScheduledTime = now.Add(-time.Hour)
	entry.Status = StatusProcessing
	assert.False(t, entry.IsDue(now))

	entry.Status = StatusRetry
	assert.True(t, entry.IsDue(now))
}

func TestAppendError(t *testing.T) {
	h := AppendError("", 1, "timeout ")
	h = AppendError(h, 2, "503 from upstream")
	assert.Equal(t, "attempt 1: timeout\nattempt 2: 503 from upstream", h)
	assert.Equal(t, "attempt 2: 503 from upstream", LastError(h))
}

func TestAppendErrorKeepsNewestWithinCap(t *testing.T) {
	h := ""
	for i := 1; i <= 200; i++ {
		h = AppendError(h, i, strings.Repeat("x", 50))
	}
	assert.LessOrEqual(t, len(h), maxErrorHistory)
	assert.True(t, strings.HasPrefix(h, "attempt "))
	assert.Contains(t, LastError(h), "attempt 200:")
}

func TestAppendErrorStaysValidUTF8(t *testing.T) {
	h := AppendError("", 1, strings.Repeat("é", 3000)+"a")
	assert.LessOrEqual(t, len(h), maxErrorHistory)
	assert.True(t, utf8.ValidString(h))
	assert.True(t, strings.HasSuffix(h, "éa"))

	h = AppendError("", 2, "bad \xff\xfe byte")
	assert.True(t, utf8.ValidString(h))
	assert.Equal(t, "attempt 2: bad \uFFFD byte", h)
}

func TestQueueStatusAdd(t *testing.T) {
	var q QueueStatus
	q.Add("linkedin", StatusPending, 2)
	q.Add("x", StatusPending, 1)
	q.Add("x", StatusFailed, 4)

	assert.EqualValues(t, 3, q.PendingCount)
	assert.EqualValues(t, 4, q.FailedCount)
	assert.EqualValues(t, 2, q.PerPlatformCounts["linkedin"][StatusPending])
	assert.EqualValues(t, 4, q.PerPlatformCounts["x"][StatusFailed])
}
