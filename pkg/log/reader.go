package log

import (
	"errors"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	ClientID     string

	// Topic matches message and subscription events by topic.
	Topic string

	Direction *Direction
	Layer     *Layer
	Category  *Category
	Action    *SubscriptionAction

	// Events in [TimeStart, TimeEnd).
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event satisfies every set criterion.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID,
		f.ClientID != "" && event.ClientID != f.ClientID,
		f.Topic != "" && event.Topic() != f.Topic,
		f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category,
		f.Action != nil && (event.Subscription == nil || event.Subscription.Action != *f.Action),
		f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events from a log file written by FileLogger.
type Reader struct {
	file   *os.File
	dec    *cbor.Decoder
	header Header
	filter Filter
}

// NewReader opens the log at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the log at path and yields only events matching filter.
// It fails with ErrNotEventLog when the file has no valid header.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := NewDecoder(f)
	h, err := readHeader(dec)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{file: f, dec: dec, header: h, filter: filter}, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// All iterates the remaining matching events. Iteration stops after the
// first decode error, which is yielded with a zero Event.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
