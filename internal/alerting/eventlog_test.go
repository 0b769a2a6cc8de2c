package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/testutil"
)

// memoryEventlog stores entries in memory. A non-nil gate blocks every
// write until it is closed.
type memoryEventlog struct {
	mu      sync.Mutex
	entries []entities.Eventlog
	gate    chan struct{}
	err     error
}

func (m *memoryEventlog) Log(_ context.Context, entry *entities.Eventlog) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryEventlog) List(_ context.Context, _ repository.EventlogFilter) ([]entities.Eventlog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Eventlog(nil), m.entries...), nil
}

func TestAsyncEventLogger_CloseDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &memoryEventlog{}
	l := NewAsyncEventLogger(repo, testLogger())
	for i := range 50 {
		l.Log(uint(i+1), "Alert rule failed", entities.SeverityLevelError)
	}
	l.Close()

	entries, err := repo.List(t.Context(), repository.EventlogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, uint(i+1), e.DeviceID, "entries are written in order")
		assert.Equal(t, "alert", e.Type)
		assert.Equal(t, entities.SeverityLevelError, e.Severity)
		assert.False(t, e.Datetime.IsZero())
	}
}

func TestAsyncEventLogger_LogAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &memoryEventlog{}
	l := NewAsyncEventLogger(repo, testLogger())
	l.Close()
	l.Close()
	l.Log(1, "late", entities.SeverityLevelInfo)

	entries, _ := repo.List(t.Context(), repository.EventlogFilter{})
	assert.Empty(t, entries)
}

func TestAsyncEventLogger_FullBufferDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &memoryEventlog{gate: make(chan struct{})}
	l := NewAsyncEventLogger(repo, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range eventlogBufferSize + 100 {
			l.Log(1, "flood", entities.SeverityLevelWarning)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Log blocked on a full buffer")
	}

	close(repo.gate)
	l.Close()
	entries, _ := repo.List(t.Context(), repository.EventlogFilter{})
	// One entry may already be held by the worker when the buffer fills.
	assert.LessOrEqual(t, len(entries), eventlogBufferSize+1)
	assert.GreaterOrEqual(t, len(entries), eventlogBufferSize)
}

func TestAsyncEventLogger_WriteErrorKeepsWorking(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &memoryEventlog{err: errors.New("table is read only")}
	l := NewAsyncEventLogger(repo, testLogger())
	l.Log(1, "lost", entities.SeverityLevelNotice)
	l.Close()

	entries, _ := repo.List(t.Context(), repository.EventlogFilter{})
	assert.Empty(t, entries)
}

func TestAsyncEventLogger_Database(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewEventlogRepository(db)
	l := NewAsyncEventLogger(repo, testLogger())
	l.Log(3, "Alert got better but the diff was not", entities.SeverityLevelWarning)
	l.Close()

	entries, err := repo.List(t.Context(), repository.EventlogFilter{DeviceID: 3, Type: "alert"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alert got better but the diff was not", entries[0].Message)
}
