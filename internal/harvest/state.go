// Package harvest scans virtualized lists: containers that only keep the
// currently visible children in the tree and identify them by a rank signal
// (a pixel offset) instead of an index. Enumerate collects every relevant
// item of such a list; RevealUntilTop scrolls a chat until its whole history
// has been loaded.
package harvest

import (
	"errors"
	"time"
)

// ErrPrecondition is returned when the container to scan is missing or
// cannot be read at all. It is never retried.
var ErrPrecondition = errors.New("harvest: precondition failed")

// Direction is the scroll direction of a pass.
type Direction int

const (
	// Forward scrolls away from the origin; progress is the largest rank seen.
	Forward Direction = iota
	// Backward scrolls toward the origin; progress is the smallest rank seen.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

func (d Direction) sign() int {
	if d == Backward {
		return -1
	}
	return 1
}

// Speed tunes the adaptive scroll step of Enumerate.
type Speed struct {
	Initial   int
	Increment int
	Decrement int
	Floor     int
}

// DefaultSpeed returns the step tuning used for the contact side panel.
func DefaultSpeed() Speed {
	return Speed{Initial: 150, Increment: 50, Decrement: 25, Floor: 25}
}

// Adjust returns the step for the next scroll. prevBest is the best rank of
// the pass before this iteration and edge the leading rank of this
// iteration's frame. Overlap with covered territory grows the step; a gap
// shrinks it down to Floor.
func (s Speed) Adjust(current, prevBest, edge int, dir Direction) int {
	if dir == Backward {
		prevBest, edge = -prevBest, -edge
	}
	switch {
	case edge < prevBest:
		return current + s.Increment
	case edge > prevBest:
		next := current - s.Decrement
		if next < s.Floor {
			next = s.Floor
		}
		return next
	default:
		return current
	}
}

// ScrollState tracks progress of one harvesting run. It is created per run
// and never shared.
type ScrollState struct {
	LastOffset  int
	StableCount int
	Speed       int
	Direction   Direction

	haveOffset bool
	best       int
	haveBest   bool
}

// NewScrollState returns a state for a run starting in dir.
func NewScrollState(speed int, dir Direction) *ScrollState {
	return &ScrollState{Speed: speed, Direction: dir}
}

// Observe records a container offset reading and reports whether it equals
// the previous one. The first reading of a run never counts as a stall.
func (s *ScrollState) Observe(offset int) bool {
	stalled := s.haveOffset && offset == s.LastOffset
	if stalled {
		s.StableCount++
	} else {
		s.StableCount = 0
	}
	s.LastOffset = offset
	s.haveOffset = true
	return stalled
}

// Best returns the best rank of the current pass, if any.
func (s *ScrollState) Best() (int, bool) {
	return s.best, s.haveBest
}

// observeRank folds a rank into the pass best.
func (s *ScrollState) observeRank(rank int) {
	switch {
	case !s.haveBest:
		s.best = rank
	case s.Direction == Forward && rank > s.best:
		s.best = rank
	case s.Direction == Backward && rank < s.best:
		s.best = rank
	}
	s.haveBest = true
}

// reverse flips the direction and starts a fresh pass.
func (s *ScrollState) reverse() {
	if s.Direction == Forward {
		s.Direction = Backward
	} else {
		s.Direction = Forward
	}
	s.StableCount = 0
	s.best, s.haveBest = 0, false
}

// Unbounded disables SyncPollCeiling or MaxIterations.
const Unbounded = -1

// Options configure a Harvester. Zero values fall back to DefaultOptions.
type Options struct {
	Speed          Speed
	StallThreshold int
	Pause          time.Duration

	RevealStep         int
	RevealStallCeiling int
	RevealPause        time.Duration

	SyncCooldown     time.Duration
	SyncPollInterval time.Duration
	// SyncPollCeiling bounds the polls while the chat is syncing. Set it to
	// Unbounded to poll until the banner changes.
	SyncPollCeiling int

	// MaxIterations bounds every loop. Set it to Unbounded to remove the bound.
	MaxIterations int
}

// DefaultOptions returns the tuning used against the web client.
func DefaultOptions() Options {
	return Options{
		Speed:              DefaultSpeed(),
		StallThreshold:     3,
		Pause:              500 * time.Millisecond,
		RevealStep:         700,
		RevealStallCeiling: 8,
		RevealPause:        2 * time.Second,
		SyncCooldown:       10 * time.Second,
		SyncPollInterval:   time.Second,
		SyncPollCeiling:    300,
		MaxIterations:      20000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Speed.Initial <= 0 {
		o.Speed.Initial = d.Speed.Initial
	}
	if o.Speed.Increment <= 0 {
		o.Speed.Increment = d.Speed.Increment
	}
	if o.Speed.Decrement <= 0 {
		o.Speed.Decrement = d.Speed.Decrement
	}
	if o.Speed.Floor <= 0 {
		o.Speed.Floor = d.Speed.Floor
	}
	if o.StallThreshold <= 0 {
		o.StallThreshold = d.StallThreshold
	}
	if o.RevealStep <= 0 {
		o.RevealStep = d.RevealStep
	}
	if o.RevealStallCeiling <= 0 {
		o.RevealStallCeiling = d.RevealStallCeiling
	}
	if o.Pause <= 0 {
		o.Pause = d.Pause
	}
	if o.RevealPause <= 0 {
		o.RevealPause = d.RevealPause
	}
	if o.SyncCooldown <= 0 {
		o.SyncCooldown = d.SyncCooldown
	}
	if o.SyncPollInterval <= 0 {
		o.SyncPollInterval = d.SyncPollInterval
	}
	if o.SyncPollCeiling == 0 {
		o.SyncPollCeiling = d.SyncPollCeiling
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = d.MaxIterations
	}
	return o
}
