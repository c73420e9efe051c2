// Package stall holds the most recent stylized image for display clients
// that poll it.
//
// The Slot keeps exactly one entry in memory. Writes replace it atomically;
// readers always see a complete entry or none.
//
// Usage:
//
//	slot := stall.NewSlot()
//	entry, err := slot.Put(pngBytes)
//	latest, ok := slot.Latest()
package stall

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Slot errors
var (
	ErrEmptyImage = errors.New("stall: image data is empty")
	ErrNotPNG     = errors.New("stall: image data is not a PNG")
)

// Entry is one stored result.
type Entry struct {
	ID        string
	Data      []byte
	Width     int
	Height    int
	CreatedAt time.Time
}

// Timestamp returns CreatedAt as fractional seconds since the Unix epoch.
func (e Entry) Timestamp() float64 {
	return float64(e.CreatedAt.Unix()) + float64(e.CreatedAt.Nanosecond())/float64(time.Second)
}

// Slot is a single-entry in-memory result store, safe for concurrent use.
type Slot struct {
	mu    sync.RWMutex
	entry *Entry
	now   func() time.Time
}

// NewSlot creates an empty Slot.
func NewSlot() *Slot {
	return &Slot{now: time.Now}
}

// Put validates data as a PNG and replaces the stored entry with it.
// The slot keeps its own copy of data.
func (s *Slot) Put(data []byte) (Entry, error) {
	if len(data) == 0 {
		return Entry{}, ErrEmptyImage
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrNotPNG, err)
	}

	entry := &Entry{
		ID:     uuid.NewString(),
		Data:   bytes.Clone(data),
		Width:  cfg.Width,
		Height: cfg.Height,
	}

	s.mu.Lock()
	entry.CreatedAt = s.now()
	s.entry = entry
	s.mu.Unlock()

	return *entry, nil
}

// Latest returns the stored entry, or false when nothing has been stored.
// The returned Data must not be modified.
func (s *Slot) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entry == nil {
		return Entry{}, false
	}
	return *s.entry, true
}

// Timestamp returns the production time of the stored entry in seconds
// since the epoch, or 0 when the slot is empty.
func (s *Slot) Timestamp() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entry == nil {
		return 0
	}
	return s.entry.Timestamp()
}
