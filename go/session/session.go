// Package session wires a room client into the reducer: it owns the
// single mutable current-snapshot cell, serializes every reduce call
// through one apply loop, and surfaces change and consensus notifications
// to the surrounding application.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pointcasthq/pointcast/go/room"
	"github.com/pointcasthq/pointcast/go/roomclient"
	"github.com/pointcasthq/pointcast/go/stats"
)

// Archiver is the persistence boundary: it may read a terminal snapshot at
// a round boundary. The core never writes durable storage itself.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, snap *room.Snapshot) error
}

// Options configure the notifications a session emits.
type Options struct {
	// OnChange fires with the new snapshot after every transition that
	// produced a new value. Identity-equal transitions never fire.
	OnChange func(*room.Snapshot)

	// OnConsensus fires on the false→true edge of the full-consensus
	// predicate, with the aggregates that satisfied it. It re-arms as soon
	// as the predicate drops back to false.
	OnConsensus func(stats.Summary)

	// Archiver, when set, receives the pre-reset snapshot at each round
	// boundary.
	Archiver Archiver
}

// Session owns the current snapshot for one room membership.
type Session struct {
	client *roomclient.Client
	opts   Options

	events chan room.Event
	sub    roomclient.Subscription

	mu         sync.RWMutex
	snap       *room.Snapshot
	celebrated bool

	startOnce sync.Once
	done      chan struct{}
}

// New creates a session around client. client may be nil when events are
// fed exclusively through HandleEvent (e.g. from a feed).
func New(client *roomclient.Client, opts Options) *Session {
	return &Session{
		client: client,
		opts:   opts,
		events: make(chan room.Event, 64),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the client's inbound stream and begins applying
// events. Reduce calls never interleave: everything funnels through one
// loop goroutine.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.client != nil {
			s.sub = s.client.On(roomclient.EventAny, s.HandleEvent)
		}
		go s.loop(ctx)
	})
}

// Stop detaches from the client and ends the apply loop.
func (s *Session) Stop() {
	if s.client != nil {
		s.client.Off(s.sub)
	}
	close(s.done)
}

// HandleEvent enqueues one inbound event for application. Safe for any
// transport to call; ordering is the caller's per-channel ordering.
func (s *Session) HandleEvent(ev room.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Snapshot returns the current snapshot, nil before the first initialize.
// The returned value is shared and must not be mutated.
func (s *Session) Snapshot() *room.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case ev := <-s.events:
			s.apply(ctx, ev)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) apply(ctx context.Context, ev room.Event) {
	s.mu.Lock()
	prev := s.snap
	next := room.Reduce(prev, ev)
	if next == prev {
		s.mu.Unlock()
		return
	}
	s.snap = next

	full := stats.IsFullConsensus(next)
	celebrate := full && !s.celebrated
	s.celebrated = full
	s.mu.Unlock()

	if ev.Type == room.EventResetVotes && prev != nil && s.opts.Archiver != nil {
		// The pre-reset snapshot is the terminal state of the round.
		if err := s.opts.Archiver.ArchiveSnapshot(ctx, prev); err != nil {
			log.Warn().Err(err).Str("room", prev.Key).Msg("round snapshot archive failed")
		}
	}

	if s.opts.OnChange != nil {
		s.opts.OnChange(next)
	}
	if celebrate && s.opts.OnConsensus != nil {
		s.opts.OnConsensus(stats.Summarize(next))
	}
}

// Vote submits a debounced vote through the client.
func (s *Session) Vote(v roomclient.Vote) error {
	return s.client.SubmitVote(v)
}

// VoteNow submits a vote immediately, bypassing the debounce window.
func (s *Session) VoteNow(v roomclient.Vote) error {
	return s.client.SubmitVoteNow(v)
}

// Reveal requests the round reveal, flushing any pending vote first.
func (s *Session) Reveal() error {
	return s.client.RevealVotes()
}

// Reset requests the atomic round reset.
func (s *Session) Reset() error {
	return s.client.ResetVotes()
}

// UpdateSettings replaces the room settings wholesale.
func (s *Session) UpdateSettings(settings room.Settings) error {
	return s.client.UpdateSettings(settings)
}
