// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package audit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	// BufferSize is the size of the async write buffer.
	BufferSize int

	// WriteTimeout bounds a single store write.
	WriteTimeout time.Duration

	// LogToStdout also writes events to the application log.
	LogToStdout bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:   1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Logger records events asynchronously so request handlers never wait on
// the store.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger and starts its writer.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.config.LogToStdout {
		data, err := json.Marshal(event)
		if err == nil {
			logging.Info().RawJSON("event", data).Msg("Audit event")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.config.WriteTimeout)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
	}
}

// Log records an event. A full buffer drops the event with a warning.
func (l *Logger) Log(event *Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}

	select {
	case <-l.stopChan:
		logging.Warn().Str("event_id", event.ID).Msg("Audit logger closed, dropping event")
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// Close flushes buffered events and stops the writer.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Purge deletes events older than cutoff.
func (l *Logger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return l.store.Delete(ctx, cutoff)
}

// FromRequest starts an event attributed to the authenticated caller of r.
func FromRequest(r *http.Request, typ EventType, target, description string) *Event {
	e := &Event{
		Type:        typ,
		Outcome:     OutcomeSuccess,
		ActorID:     "unknown",
		SourceIP:    sourceIP(r),
		RequestID:   logging.RequestIDFromContext(r.Context()),
		Target:      target,
		Description: description,
	}
	if s := authz.SubjectFromContext(r.Context()); s != nil {
		e.ActorID = s.ID
		e.ActorRoles = append([]string(nil), s.Roles...)
	}
	return e
}

// WithMetadata attaches v as JSON metadata. Values that fail to marshal are
// dropped.
func (e *Event) WithMetadata(v interface{}) *Event {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Warn().Err(err).Str("type", string(e.Type)).Msg("Failed to marshal audit metadata")
		return e
	}
	e.Metadata = data
	return e
}

// Failed marks the event as a failed attempt.
func (e *Event) Failed() *Event {
	e.Outcome = OutcomeFailure
	return e
}

// sourceIP strips the port from RemoteAddr, which RealIP has already
// rewritten from proxy headers.
func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
