package room

import "encoding/json"

// EventType tags the variants of the room event stream.
type EventType string

const (
	EventInitialize           EventType = "initialize"
	EventUserJoined           EventType = "userJoined"
	EventUserLeft             EventType = "userLeft"
	EventUserConnectionStatus EventType = "userConnectionStatus"
	EventNewModerator         EventType = "newModerator"
	EventVote                 EventType = "vote"
	EventShowVotes            EventType = "showVotes"
	EventResetVotes           EventType = "resetVotes"
	EventSettingsUpdated      EventType = "settingsUpdated"
	EventJudgeScoreUpdated    EventType = "judgeScoreUpdated"

	// Pass-through variants owned by external collaborators. The reducer
	// only swaps the opaque field they carry.
	EventTicketUpdated   EventType = "ticketUpdated"
	EventPlaybackUpdated EventType = "playbackUpdated"
)

// Event is the wire envelope for one room event. Data holds the
// type-specific payload; for pass-through variants it is the opaque field
// value itself, and a missing Data means "clear the field".
type Event struct {
	ID   string          `json:"id,omitempty"`
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UserJoinedPayload announces a participant. Avatar is an optional
// presentation hint recorded only if none is known yet.
type UserJoinedPayload struct {
	User   string `json:"user"`
	Avatar string `json:"avatar,omitempty"`
}

// UserLeftPayload removes a participant and all per-user entries.
type UserLeftPayload struct {
	User string `json:"user"`
}

// ConnectionStatusPayload flips a participant's liveness flag.
type ConnectionStatusPayload struct {
	User      string `json:"user"`
	Connected bool   `json:"connected"`
}

// NewModeratorPayload reassigns moderation rights.
type NewModeratorPayload struct {
	Moderator string `json:"moderator"`
}

// VotePayload carries a participant's scalar vote and, independently, an
// optional structured vote. StructuredVote distinguishes three states:
// field absent (no structured change), JSON null (remove the entry), or an
// object (upsert the entry).
type VotePayload struct {
	User           string          `json:"user"`
	Vote           *string         `json:"vote"`
	StructuredVote json.RawMessage `json:"structuredVote,omitempty"`
}

// ShowVotesPayload toggles the revealed state of the round.
type ShowVotesPayload struct {
	ShowVotes bool `json:"showVotes"`
}

// JudgeScorePayload carries the automated verdict for the round. Both
// fields are opaque; omitted fields reset to absent.
type JudgeScorePayload struct {
	Score    json.RawMessage `json:"score,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// NewEvent builds an event envelope, marshaling payload into Data. A nil
// payload produces an envelope without data.
func NewEvent(t EventType, payload any) (Event, error) {
	ev := Event{Type: t}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	ev.Data = data
	return ev, nil
}
