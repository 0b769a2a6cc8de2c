package alerting

import (
	"context"
	"sync"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/faults"
	"github.com/faultwatch/faultwatch/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewNop()
}

// recordedEvent is one EventLogger call.
type recordedEvent struct {
	DeviceID uint
	Message  string
	Severity int
}

// fakeEvents records eventlog calls synchronously.
type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) Log(deviceID uint, message string, severity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{DeviceID: deviceID, Message: message, Severity: severity})
}

func (f *fakeEvents) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

// fakeContacts returns a fixed contact map.
type fakeContacts struct {
	contacts entities.Contacts
	err      error
	calls    int
}

func (f *fakeContacts) Resolve(_ context.Context, _ faults.Set) (entities.Contacts, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts, nil
}

// queryCall is one RunRuleQuery invocation.
type queryCall struct {
	SQL  string
	Args []any
}

// fakeQueryRunner answers rule queries from a canned result.
type fakeQueryRunner struct {
	rows  faults.Set
	err   error
	calls []queryCall
}

func (f *fakeQueryRunner) RunRuleQuery(_ context.Context, query string, args ...any) (faults.Set, error) {
	f.calls = append(f.calls, queryCall{SQL: query, Args: args})
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}
