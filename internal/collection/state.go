// Package collection holds the observable list of cells a viewer displays.
package collection

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/postview/internal/logging"
	"github.com/tOgg1/postview/internal/models"
)

// Status is the lifecycle state of a collection.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusData
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusData:
		return "data"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the state at one version.
type Snapshot struct {
	Status  Status
	Chan    models.ChanDescriptor
	Cells   []models.RenderReadyCell
	Err     error
	Version uint64
}

func (s Snapshot) clone() Snapshot {
	if s.Cells != nil {
		cells := make([]models.RenderReadyCell, len(s.Cells))
		for i, c := range s.Cells {
			cells[i] = c.Clone()
		}
		s.Cells = cells
	}
	return s
}

type subscriber struct {
	ch   chan Snapshot
	once sync.Once
}

// State is written by a single owner and read by any number of
// subscribers.
type State struct {
	mu     sync.Mutex
	snap   Snapshot
	subs   map[int]*subscriber
	nextID int
	logger zerolog.Logger
}

// New returns an uninitialized state.
func New() *State {
	return &State{
		subs:   make(map[int]*subscriber),
		logger: logging.Component("collection"),
	}
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Status
}

// SetLoading marks chanDescriptor as loading. Cells from a previous Data
// state for the same chan are kept so the display can show them meanwhile.
func (s *State) SetLoading(chanDescriptor models.ChanDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := Snapshot{Status: StatusLoading, Chan: chanDescriptor}
	if s.snap.Chan == chanDescriptor {
		next.Cells = s.snap.Cells
	}
	s.publishLocked(next)
}

// SetData publishes cells for chanDescriptor.
func (s *State) SetData(chanDescriptor models.ChanDescriptor, cells []models.RenderReadyCell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(Snapshot{Status: StatusData, Chan: chanDescriptor, Cells: cells}.clone())
}

// SetError publishes a failure for chanDescriptor.
func (s *State) SetError(chanDescriptor models.ChanDescriptor, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(Snapshot{Status: StatusError, Chan: chanDescriptor, Err: err})
}

// Reset returns the state to uninitialized.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Status == StatusUninitialized {
		return
	}
	s.publishLocked(Snapshot{Status: StatusUninitialized})
}

// Subscribe streams snapshots, starting with the current one. A slow
// reader skips intermediate snapshots but always sees the newest. The
// returned func stops the stream and closes the channel.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, 1)}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	sub.ch <- s.snap.clone()
	s.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(sub.ch)
			s.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

func (s *State) publishLocked(next Snapshot) {
	next.Version = s.snap.Version + 1
	prev := s.snap.Status
	s.snap = next

	s.logger.Debug().
		Str("from", prev.String()).
		Str("to", next.Status.String()).
		Str("chan", next.Chan.String()).
		Int("cells", len(next.Cells)).
		Uint64("version", next.Version).
		Msg("collection state changed")

	for _, sub := range s.subs {
		offer(sub.ch, next.clone())
	}
}

// offer replaces any unread snapshot in the single-slot channel.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
