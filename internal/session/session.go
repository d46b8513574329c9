package session

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// Snapshot is a consistent read of the whole session taken under one lock.
type Snapshot struct {
	StartedAt time.Time            `json:"session_start"`
	Positions []Position           `json:"positions"`
	Summary   Summary              `json:"summary"`
	Recent    []domain.TradeRecord `json:"recent_trades"`
}

// Session owns the position ledger and the trade journal. A fill and its
// journal record are always applied together.
type Session struct {
	mu        sync.RWMutex
	positions map[PositionKey]PositionState
	journal   Journal
	startedAt time.Time
	now       func() time.Time
}

// New creates an empty session started now.
func New() *Session {
	s := &Session{now: time.Now}
	s.positions = make(map[PositionKey]PositionState)
	s.startedAt = s.now().UTC()
	return s
}

// Commit applies fill to the ledger and appends record in one critical
// section. It returns the resulting position.
func (s *Session) Commit(fill domain.Fill, record domain.TradeRecord) Position {
	key := PositionKey{Ticker: fill.Ticker, Side: fill.Side}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := Apply(s.positions[key], fill.Action, fill.Count, fill.PriceCents)
	if next.Count == 0 {
		delete(s.positions, key)
	} else {
		s.positions[key] = next
	}
	s.journal.Append(record)
	return newPosition(key, next)
}

// Position returns the ledger entry for ticker and side.
func (s *Session) Position(ticker string, side domain.Side) Position {
	key := PositionKey{Ticker: ticker, Side: side}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newPosition(key, s.positions[key])
}

// Positions returns all non-flat positions ordered by ticker then side.
func (s *Session) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionsLocked()
}

func (s *Session) positionsLocked() []Position {
	out := make([]Position, 0, len(s.positions))
	for k, v := range s.positions {
		out = append(out, newPosition(k, v))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// Summary folds the journal.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal.Summary()
}

// Snapshot returns positions, summary and the newest recent trades together.
func (s *Session) Snapshot(recent int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		StartedAt: s.startedAt,
		Positions: s.positionsLocked(),
		Summary:   s.journal.Summary(),
		Recent:    s.journal.Recent(recent),
	}
}

// Trades returns a copy of the journal.
func (s *Session) Trades() []domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal.Records()
}

// Reset clears the ledger and the journal and starts a new session.
func (s *Session) Reset() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make(map[PositionKey]PositionState)
	s.journal.clear()
	s.startedAt = s.now().UTC()
	return s.startedAt
}

// StartedAt returns when the current session began.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}
