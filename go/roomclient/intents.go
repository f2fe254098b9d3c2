package roomclient

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/pointcasthq/pointcast/go/room"
)

// IntentType tags outbound messages from this participant to the room.
type IntentType string

const (
	IntentVote           IntentType = "vote"
	IntentShowVotes      IntentType = "showVotes"
	IntentResetVotes     IntentType = "resetVotes"
	IntentUpdateSettings IntentType = "updateSettings"
	IntentNewModerator   IntentType = "newModerator"
)

// Intent is the outbound wire envelope, mirroring the inbound event shape.
type Intent struct {
	ID   string          `json:"id"`
	Type IntentType      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Vote is an outbound vote intent. The participant identity is implied by
// the connection. A non-nil Structured entry has its derived estimate
// recomputed locally before sending; the carried value is never trusted.
type Vote struct {
	Value      string               `json:"vote"`
	Structured *room.StructuredVote `json:"structuredVote,omitempty"`
}

// SubmitVote coalesces rapid repeated votes: only the most recent value
// inside the debounce window is sent. A new call replaces the pending
// timer; there is never more than one queued send. Use SubmitVoteNow when
// the value must land before a dependent action.
func (c *Client) SubmitVote(v Vote) error {
	c.mu.Lock()
	if c.closed || c.cur == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.voteTimer != nil {
		stopAndDrainTimer(c.voteTimer)
	}
	timer := c.clock.NewTimer(c.config.DebounceWindow)
	c.voteTimer = timer
	c.pendingVote = v
	ctx := c.lifeCtx
	c.mu.Unlock()

	go func() {
		select {
		case <-timer.Chan():
			c.flushVote(timer)
		case <-ctx.Done():
			stopAndDrainTimer(timer)
		}
	}()
	return nil
}

// flushVote sends the pending vote when its debounce timer fires, unless a
// newer call already replaced the timer.
func (c *Client) flushVote(timer clockwork.Timer) {
	c.mu.Lock()
	if c.voteTimer != timer {
		c.mu.Unlock()
		return
	}
	c.voteTimer = nil
	v := c.pendingVote
	c.mu.Unlock()

	if err := c.sendVote(v); err != nil {
		log.Warn().Err(err).Str("room", c.config.RoomKey).Msg("debounced vote send failed")
	}
}

// SubmitVoteNow sends immediately, cancelling any pending debounced vote.
func (c *Client) SubmitVoteNow(v Vote) error {
	c.cancelPendingVote()
	return c.sendVote(v)
}

// RevealVotes first flushes any pending debounced vote so the reveal never
// overtakes the value it depends on, then requests the reveal.
func (c *Client) RevealVotes() error {
	c.mu.Lock()
	var pending *Vote
	if c.voteTimer != nil {
		stopAndDrainTimer(c.voteTimer)
		c.voteTimer = nil
		v := c.pendingVote
		pending = &v
	}
	c.mu.Unlock()

	if pending != nil {
		if err := c.sendVote(*pending); err != nil {
			return err
		}
	}
	return c.sendIntent(IntentShowVotes, room.ShowVotesPayload{ShowVotes: true})
}

// ResetVotes requests the atomic round reset.
func (c *Client) ResetVotes() error {
	return c.sendIntent(IntentResetVotes, nil)
}

// UpdateSettings replaces the room settings wholesale. Merge any partial
// change into a full settings value before calling.
func (c *Client) UpdateSettings(s room.Settings) error {
	return c.sendIntent(IntentUpdateSettings, s)
}

// SetModerator requests reassignment of moderation rights.
func (c *Client) SetModerator(name string) error {
	return c.sendIntent(IntentNewModerator, room.NewModeratorPayload{Moderator: name})
}

// SendRaw forwards an opaque pass-through intent for an external
// collaborator, e.g. a third-party ticket update request.
func (c *Client) SendRaw(intentType string, payload json.RawMessage) error {
	env := Intent{ID: uuid.NewString(), Type: IntentType(intentType), Data: payload}
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	return c.enqueue(msg)
}

func (c *Client) sendVote(v Vote) error {
	if v.Structured != nil {
		sv := room.NewStructuredVote(v.Structured.CriteriaScores)
		v.Structured = &sv
	}
	return c.sendIntent(IntentVote, v)
}

func (c *Client) sendIntent(t IntentType, payload any) error {
	env := Intent{ID: uuid.NewString(), Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s intent: %w", t, err)
		}
		env.Data = data
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal intent envelope: %w", err)
	}
	return c.enqueue(msg)
}

// enqueue hands a frame to the write pump. Transport-level failure is
// reported synchronously so the caller can decide what to do.
func (c *Client) enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.cur
	if c.closed || w == nil {
		return ErrNotConnected
	}
	select {
	case w.send <- msg:
		return nil
	case <-w.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) cancelPendingVote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voteTimer != nil {
		stopAndDrainTimer(c.voteTimer)
		c.voteTimer = nil
	}
}
