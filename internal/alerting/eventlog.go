package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/logger"
)

// EventLogger records operator-visible device events. Implementations must
// not block evaluation.
type EventLogger interface {
	Log(deviceID uint, message string, severity int)
}

const (
	// eventlogBufferSize is the capacity of the async eventlog channel.
	// Entries are dropped if the buffer is full.
	eventlogBufferSize = 1000
)

// AsyncEventLogger writes eventlog entries from a worker goroutine so rule
// evaluation never waits on the eventlog table.
type AsyncEventLogger struct {
	repo     repository.EventlogRepository
	log      logger.Logger
	entryCh  chan *entities.Eventlog
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewAsyncEventLogger creates the logger and starts its worker.
func NewAsyncEventLogger(repo repository.EventlogRepository, log logger.Logger) *AsyncEventLogger {
	l := &AsyncEventLogger{
		repo:    repo,
		log:     log,
		entryCh: make(chan *entities.Eventlog, eventlogBufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.processLoop()
	return l
}

// Log enqueues an alert eventlog entry. Entries logged after Close are
// discarded.
func (l *AsyncEventLogger) Log(deviceID uint, message string, severity int) {
	select {
	case <-l.stopCh:
		return
	default:
	}

	entry := &entities.Eventlog{
		DeviceID: deviceID,
		Datetime: time.Now().UTC(),
		Message:  message,
		Type:     eventlogTypeAlert,
		Severity: severity,
	}
	select {
	case l.entryCh <- entry:
	default:
		l.log.Warn("eventlog buffer full, dropping entry",
			logger.Uint64("device_id", uint64(deviceID)),
			logger.String("message", message))
	}
}

// Close stops the worker after writing everything already queued. Safe to
// call multiple times.
func (l *AsyncEventLogger) Close() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.done
}

func (l *AsyncEventLogger) processLoop() {
	defer close(l.done)
	for {
		select {
		case entry := <-l.entryCh:
			l.write(entry)
		case <-l.stopCh:
			for {
				select {
				case entry := <-l.entryCh:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *AsyncEventLogger) write(entry *entities.Eventlog) {
	ctx, cancel := context.WithTimeout(context.Background(), eventlogTimeout)
	defer cancel()
	if err := l.repo.Log(ctx, entry); err != nil {
		l.log.Error("failed to write eventlog entry",
			logger.Uint64("device_id", uint64(entry.DeviceID)),
			logger.Error(err))
	}
}
