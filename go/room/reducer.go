package room

import (
	"bytes"
	"encoding/json"
	"reflect"
	"slices"
)

// Reduce is the pure transition function of the room: it maps the current
// snapshot (nil before the first initialize) and one event to the next
// snapshot. It performs no I/O and never mutates its input.
//
// If applying the event would not change any observable field, the
// identical snapshot pointer is returned so downstream change detection
// can rely on identity comparison. Unknown event types and malformed
// payloads on known types are identity no-ops.
func Reduce(s *Snapshot, ev Event) *Snapshot {
	if ev.Type == EventInitialize {
		return reduceInitialize(s, ev)
	}
	if s == nil {
		// No baseline yet; only initialize can establish one.
		return nil
	}

	switch ev.Type {
	case EventUserJoined:
		return reduceUserJoined(s, ev)
	case EventUserLeft:
		return reduceUserLeft(s, ev)
	case EventUserConnectionStatus:
		return reduceConnectionStatus(s, ev)
	case EventNewModerator:
		return reduceNewModerator(s, ev)
	case EventVote:
		return reduceVote(s, ev)
	case EventShowVotes:
		return reduceShowVotes(s, ev)
	case EventResetVotes:
		return reduceResetVotes(s)
	case EventSettingsUpdated:
		return reduceSettingsUpdated(s, ev)
	case EventJudgeScoreUpdated:
		return reduceJudgeScore(s, ev)
	case EventTicketUpdated:
		return reducePassThrough(s, ev.Data, func(c *Snapshot, v json.RawMessage) { c.Ticket = v }, s.Ticket)
	case EventPlaybackUpdated:
		return reducePassThrough(s, ev.Data, func(c *Snapshot, v json.RawMessage) { c.Playback = v }, s.Playback)
	default:
		// Forward compatibility: servers may emit event kinds this core
		// does not understand yet.
		return s
	}
}

func reduceInitialize(s *Snapshot, ev Event) *Snapshot {
	if isRawAbsent(ev.Data) {
		return s
	}
	var next Snapshot
	if err := json.Unmarshal(ev.Data, &next); err != nil {
		return s
	}
	next.JudgeScore = normalizeRaw(next.JudgeScore)
	next.JudgeMetadata = normalizeRaw(next.JudgeMetadata)
	next.Ticket = normalizeRaw(next.Ticket)
	next.Playback = normalizeRaw(next.Playback)
	return &next
}

func reduceUserJoined(s *Snapshot, ev Event) *Snapshot {
	var p UserJoinedPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.User == "" {
		return s
	}

	isMember := s.HasUser(p.User)
	isConnected := s.ConnectedUsers[p.User]
	_, hasAvatar := s.Avatars[p.User]
	recordAvatar := p.Avatar != "" && !hasAvatar

	if isMember && isConnected && !recordAvatar {
		return s
	}

	c := s.clone()
	if !isMember {
		c.Users = append(c.Users, p.User)
	}
	if !isConnected {
		if c.ConnectedUsers == nil {
			c.ConnectedUsers = make(map[string]bool)
		}
		c.ConnectedUsers[p.User] = true
	}
	if recordAvatar {
		if c.Avatars == nil {
			c.Avatars = make(map[string]string)
		}
		c.Avatars[p.User] = p.Avatar
	}
	return c
}

func reduceUserLeft(s *Snapshot, ev Event) *Snapshot {
	var p UserLeftPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.User == "" {
		return s
	}

	_, hasVote := s.Votes[p.User]
	_, hasStructured := s.StructuredVotes[p.User]
	_, hasLiveness := s.ConnectedUsers[p.User]
	_, hasAvatar := s.Avatars[p.User]
	if !s.HasUser(p.User) && !hasVote && !hasStructured && !hasLiveness && !hasAvatar {
		return s
	}

	c := s.clone()
	c.Users = slices.DeleteFunc(c.Users, func(u string) bool { return u == p.User })
	delete(c.Votes, p.User)
	delete(c.StructuredVotes, p.User)
	delete(c.ConnectedUsers, p.User)
	delete(c.Avatars, p.User)
	if c.Moderator == p.User {
		c.Moderator = ""
	}
	return c
}

func reduceConnectionStatus(s *Snapshot, ev Event) *Snapshot {
	var p ConnectionStatusPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.User == "" {
		return s
	}
	if s.ConnectedUsers[p.User] == p.Connected {
		return s
	}
	c := s.clone()
	if c.ConnectedUsers == nil {
		c.ConnectedUsers = make(map[string]bool)
	}
	c.ConnectedUsers[p.User] = p.Connected
	return c
}

func reduceNewModerator(s *Snapshot, ev Event) *Snapshot {
	var p NewModeratorPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return s
	}
	if s.Moderator == p.Moderator {
		return s
	}
	c := s.clone()
	c.Moderator = p.Moderator
	return c
}

func reduceVote(s *Snapshot, ev Event) *Snapshot {
	var p VotePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.User == "" {
		return s
	}
	// Votes for unknown participants are dropped so the votes-keys ⊆ users
	// invariant holds under any delivery order.
	if !s.HasUser(p.User) {
		return s
	}

	scalarChanged := !voteEqual(s.Votes[p.User], p.Vote)

	// The structured field fires independently of the scalar: absent means
	// leave alone, null means remove, an object means upsert.
	var (
		structUpsert bool
		structRemove bool
		structured   StructuredVote
	)
	if !isRawAbsent(p.StructuredVote) {
		if isRawNull(p.StructuredVote) {
			_, present := s.StructuredVotes[p.User]
			structRemove = present
		} else if err := json.Unmarshal(p.StructuredVote, &structured); err == nil {
			existing, present := s.StructuredVotes[p.User]
			structUpsert = !present || !existing.Equal(structured)
		}
	}

	if !scalarChanged && !structUpsert && !structRemove {
		return s
	}

	c := s.clone()
	if scalarChanged {
		if c.Votes == nil {
			c.Votes = make(map[string]*string)
		}
		c.Votes[p.User] = p.Vote
	}
	if structUpsert {
		if c.StructuredVotes == nil {
			c.StructuredVotes = make(map[string]StructuredVote)
		}
		c.StructuredVotes[p.User] = structured
	}
	if structRemove {
		delete(c.StructuredVotes, p.User)
	}
	return c
}

func reduceShowVotes(s *Snapshot, ev Event) *Snapshot {
	var p ShowVotesPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return s
	}
	if s.ShowVotes == p.ShowVotes {
		return s
	}
	c := s.clone()
	c.ShowVotes = p.ShowVotes
	return c
}

// reduceResetVotes is the one variant that always allocates: the reset is
// a round boundary and must be observable by listeners even when every
// cleared field was already at rest.
func reduceResetVotes(s *Snapshot) *Snapshot {
	c := s.clone()
	c.Votes = make(map[string]*string)
	c.StructuredVotes = nil
	c.ShowVotes = false
	c.JudgeScore = nil
	c.JudgeMetadata = nil
	return c
}

func reduceSettingsUpdated(s *Snapshot, ev Event) *Snapshot {
	if isRawAbsent(ev.Data) {
		return s
	}
	var p Settings
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return s
	}
	if reflect.DeepEqual(s.Settings, p) {
		return s
	}
	c := s.clone()
	c.Settings = p
	return c
}

func reduceJudgeScore(s *Snapshot, ev Event) *Snapshot {
	var p JudgeScorePayload
	if !isRawAbsent(ev.Data) {
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return s
		}
	}
	score := normalizeRaw(p.Score)
	meta := normalizeRaw(p.Metadata)
	if rawEqual(s.JudgeScore, score) && rawEqual(s.JudgeMetadata, meta) {
		return s
	}
	c := s.clone()
	c.JudgeScore = score
	c.JudgeMetadata = meta
	return c
}

// reducePassThrough swaps one opaque collaborator-owned field: a missing
// payload clears it, a present payload replaces it verbatim.
func reducePassThrough(s *Snapshot, data json.RawMessage, set func(*Snapshot, json.RawMessage), current json.RawMessage) *Snapshot {
	next := normalizeRaw(data)
	if rawEqual(current, next) {
		return s
	}
	c := s.clone()
	set(c, next)
	return c
}

func voteEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func isRawAbsent(raw json.RawMessage) bool {
	return len(raw) == 0
}

func isRawNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// normalizeRaw folds JSON null into absence so "cleared" has one
// representation in the snapshot.
func normalizeRaw(raw json.RawMessage) json.RawMessage {
	if isRawAbsent(raw) || isRawNull(raw) {
		return nil
	}
	return raw
}

func rawEqual(a, b json.RawMessage) bool {
	return bytes.Equal(a, b)
}
