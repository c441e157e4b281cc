package monitor

import (
	"sync"
	"time"
)

// Status is a snapshot source for the health server. It is the only state
// shared with another goroutine.
type Status struct {
	mu            sync.RWMutex
	channel       string
	live          bool
	lastPoll      time.Time
	lastErr       string
	cycles        int
	announcements int
}

// Snapshot is the JSON view served on /status.
type Snapshot struct {
	Channel       string    `json:"channel"`
	Live          bool      `json:"live"`
	LastPoll      time.Time `json:"last_poll"`
	LastError     string    `json:"last_error,omitempty"`
	Cycles        int       `json:"cycles"`
	Announcements int       `json:"announcements"`
}

func NewStatus(channel string) *Status {
	return &Status{channel: channel}
}

func (s *Status) record(now time.Time, live bool, err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.lastPoll = now
	s.live = live
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
}

// fail sets the last error of a cycle that was already recorded.
func (s *Status) fail(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

func (s *Status) announced() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcements++
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Channel:       s.channel,
		Live:          s.live,
		LastPoll:      s.lastPoll,
		LastError:     s.lastErr,
		Cycles:        s.cycles,
		Announcements: s.announcements,
	}
}
