package room

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/pointcasthq/pointcast/go/scoring"
)

// Snapshot is the authoritative view of a session at one point in the
// event sequence. Snapshots are immutable: every reducer transition either
// returns the identical pointer (no observable change) or a freshly
// allocated value. Consumers must never mutate a snapshot they receive.
type Snapshot struct {
	Key             string                    `json:"key"`
	Users           []string                  `json:"users"`
	Moderator       string                    `json:"moderator,omitempty"`
	Votes           map[string]*string        `json:"votes"`
	StructuredVotes map[string]StructuredVote `json:"structuredVotes,omitempty"`
	ShowVotes       bool                      `json:"showVotes"`
	ConnectedUsers  map[string]bool           `json:"connectedUsers"`
	Avatars         map[string]string         `json:"avatars,omitempty"`
	JudgeScore      json.RawMessage           `json:"judgeScore,omitempty"`
	JudgeMetadata   json.RawMessage           `json:"judgeMetadata,omitempty"`
	Settings        Settings                  `json:"settings"`

	// Opaque pass-through fields owned by external collaborators.
	Ticket   json.RawMessage `json:"jiraTicket,omitempty"`
	Playback json.RawMessage `json:"playback,omitempty"`
}

// StructuredVote is a participant's multi-criterion evaluation plus the
// estimate derived from it. CalculatedStoryPoints is recomputed locally
// when authoring a vote and taken as carried when merging a peer's vote.
type StructuredVote struct {
	CriteriaScores        scoring.CriteriaScores `json:"criteriaScores"`
	CalculatedStoryPoints int                    `json:"calculatedStoryPoints"`
}

// NewStructuredVote derives the story-point estimate from the criteria
// scores. This is the authoring path; the derived field is never trusted
// as externally supplied truth here.
func NewStructuredVote(cs scoring.CriteriaScores) StructuredVote {
	return StructuredVote{
		CriteriaScores:        cs,
		CalculatedStoryPoints: scoring.StoryPoints(cs),
	}
}

// Equal reports whether two structured votes carry the same scores and
// derived estimate.
func (v StructuredVote) Equal(o StructuredVote) bool {
	return v.CalculatedStoryPoints == o.CalculatedStoryPoints &&
		maps.Equal(v.CriteriaScores, o.CriteriaScores)
}

// HasUser reports whether name is a known participant.
func (s *Snapshot) HasUser(name string) bool {
	return slices.Contains(s.Users, name)
}

// clone returns a shallow copy with fresh Users/Votes/StructuredVotes/
// ConnectedUsers/Avatars containers so the reducer can mutate the copy
// without touching the original.
func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.Users = slices.Clone(s.Users)
	c.Votes = maps.Clone(s.Votes)
	c.StructuredVotes = maps.Clone(s.StructuredVotes)
	c.ConnectedUsers = maps.Clone(s.ConnectedUsers)
	c.Avatars = maps.Clone(s.Avatars)
	return &c
}
