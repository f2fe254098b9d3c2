package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointcasthq/pointcast/go/scoring"
)

func strPtr(s string) *string { return &s }

func mustEvent(t *testing.T, typ EventType, payload any) Event {
	t.Helper()
	ev, err := NewEvent(typ, payload)
	require.NoError(t, err)
	return ev
}

func baseSnapshot() *Snapshot {
	return &Snapshot{
		Key:   "room-1",
		Users: []string{"alice", "bob"},
		Votes: map[string]*string{
			"alice": strPtr("5"),
			"bob":   nil,
		},
		ConnectedUsers: map[string]bool{"alice": true, "bob": true},
		Moderator:      "alice",
		Settings:       DefaultSettings(),
	}
}

func TestReduceInitialize(t *testing.T) {
	replacement := baseSnapshot()
	ev := mustEvent(t, EventInitialize, replacement)

	next := Reduce(nil, ev)
	require.NotNil(t, next)
	assert.Equal(t, "room-1", next.Key)
	assert.Equal(t, []string{"alice", "bob"}, next.Users)

	// A full snapshot also replaces existing state wholesale.
	prior := &Snapshot{Key: "other", Users: []string{"zed"}}
	next = Reduce(prior, ev)
	assert.Equal(t, "room-1", next.Key)
	assert.NotContains(t, next.Users, "zed")
}

func TestReduceInitializeWithoutPayloadIsNoOp(t *testing.T) {
	s := baseSnapshot()
	assert.Same(t, s, Reduce(s, Event{Type: EventInitialize}))
	assert.Nil(t, Reduce(nil, Event{Type: EventInitialize}))
}

func TestReduceBeforeInitialize(t *testing.T) {
	ev := mustEvent(t, EventUserJoined, UserJoinedPayload{User: "alice"})
	assert.Nil(t, Reduce(nil, ev))
}

func TestReduceUserJoined(t *testing.T) {
	s := baseSnapshot()
	next := Reduce(s, mustEvent(t, EventUserJoined, UserJoinedPayload{User: "carol", Avatar: "cat"}))

	require.NotSame(t, s, next)
	assert.Equal(t, []string{"alice", "bob", "carol"}, next.Users)
	assert.True(t, next.ConnectedUsers["carol"])
	assert.Equal(t, "cat", next.Avatars["carol"])

	// The original snapshot is untouched.
	assert.Equal(t, []string{"alice", "bob"}, s.Users)
}

func TestReduceUserJoinedIdempotent(t *testing.T) {
	s := baseSnapshot()
	ev := mustEvent(t, EventUserJoined, UserJoinedPayload{User: "alice"})
	assert.Same(t, s, Reduce(s, ev))
}

func TestReduceUserJoinedDoesNotOverwriteAvatar(t *testing.T) {
	s := baseSnapshot()
	s.Avatars = map[string]string{"alice": "fox"}
	next := Reduce(s, mustEvent(t, EventUserJoined, UserJoinedPayload{User: "alice", Avatar: "owl"}))
	assert.Same(t, s, next)
	assert.Equal(t, "fox", s.Avatars["alice"])
}

func TestReduceUserLeftRemovesVoteInSameTransition(t *testing.T) {
	s := baseSnapshot()
	s.StructuredVotes = map[string]StructuredVote{
		"alice": NewStructuredVote(scoring.CriteriaScores{scoring.CriterionComplexity: 2}),
	}
	next := Reduce(s, mustEvent(t, EventUserLeft, UserLeftPayload{User: "alice"}))

	require.NotSame(t, s, next)
	assert.Equal(t, []string{"bob"}, next.Users)
	_, hasVote := next.Votes["alice"]
	assert.False(t, hasVote)
	assert.NotContains(t, next.StructuredVotes, "alice")
	assert.NotContains(t, next.ConnectedUsers, "alice")
	assert.Empty(t, next.Moderator)
}

func TestReduceUserLeftUnknownUserIsNoOp(t *testing.T) {
	s := baseSnapshot()
	assert.Same(t, s, Reduce(s, mustEvent(t, EventUserLeft, UserLeftPayload{User: "nobody"})))
}

func TestReduceConnectionStatus(t *testing.T) {
	s := baseSnapshot()
	next := Reduce(s, mustEvent(t, EventUserConnectionStatus, ConnectionStatusPayload{User: "bob", Connected: false}))
	require.NotSame(t, s, next)
	assert.False(t, next.ConnectedUsers["bob"])

	// Same value again is an identity no-op.
	assert.Same(t, next, Reduce(next, mustEvent(t, EventUserConnectionStatus, ConnectionStatusPayload{User: "bob", Connected: false})))
}

func TestReduceNewModerator(t *testing.T) {
	s := baseSnapshot()
	next := Reduce(s, mustEvent(t, EventNewModerator, NewModeratorPayload{Moderator: "bob"}))
	require.NotSame(t, s, next)
	assert.Equal(t, "bob", next.Moderator)

	assert.Same(t, next, Reduce(next, mustEvent(t, EventNewModerator, NewModeratorPayload{Moderator: "bob"})))
}

func TestReduceVoteScalar(t *testing.T) {
	s := baseSnapshot()
	next := Reduce(s, mustEvent(t, EventVote, VotePayload{User: "bob", Vote: strPtr("8")}))
	require.NotSame(t, s, next)
	assert.Equal(t, "8", *next.Votes["bob"])

	// Unchanged re-vote is an identity no-op.
	assert.Same(t, next, Reduce(next, mustEvent(t, EventVote, VotePayload{User: "bob", Vote: strPtr("8")})))
}

func TestReduceVoteUnknownUserDropped(t *testing.T) {
	s := baseSnapshot()
	assert.Same(t, s, Reduce(s, mustEvent(t, EventVote, VotePayload{User: "mallory", Vote: strPtr("5")})))
}

func TestReduceVoteStructuredUpsert(t *testing.T) {
	s := baseSnapshot()
	sv := NewStructuredVote(scoring.CriteriaScores{scoring.CriterionComplexity: 3, scoring.CriterionConfidence: 2, scoring.CriterionVolume: 2, scoring.CriterionUnknowns: 1})
	raw, err := json.Marshal(sv)
	require.NoError(t, err)

	next := Reduce(s, mustEvent(t, EventVote, VotePayload{User: "bob", Vote: strPtr("5"), StructuredVote: raw}))
	require.NotSame(t, s, next)
	assert.Equal(t, 5, next.StructuredVotes["bob"].CalculatedStoryPoints)
	assert.Equal(t, "5", *next.Votes["bob"])

	// Same scalar and structured values again: identity.
	assert.Same(t, next, Reduce(next, mustEvent(t, EventVote, VotePayload{User: "bob", Vote: strPtr("5"), StructuredVote: raw})))
}

func TestReduceVoteStructuredExplicitNullRemoves(t *testing.T) {
	s := baseSnapshot()
	s.StructuredVotes = map[string]StructuredVote{"alice": NewStructuredVote(nil)}

	next := Reduce(s, mustEvent(t, EventVote, VotePayload{User: "alice", Vote: strPtr("5"), StructuredVote: json.RawMessage("null")}))
	require.NotSame(t, s, next)
	assert.NotContains(t, next.StructuredVotes, "alice")
	// Scalar vote untouched by the structured removal.
	assert.Equal(t, "5", *next.Votes["alice"])
}

func TestReduceVoteStructuredAbsentLeavesEntry(t *testing.T) {
	s := baseSnapshot()
	s.StructuredVotes = map[string]StructuredVote{"alice": NewStructuredVote(nil)}

	next := Reduce(s, mustEvent(t, EventVote, VotePayload{User: "alice", Vote: strPtr("3")}))
	require.NotSame(t, s, next)
	assert.Contains(t, next.StructuredVotes, "alice")
	assert.Equal(t, "3", *next.Votes["alice"])
}

func TestReduceShowVotes(t *testing.T) {
	s := baseSnapshot()
	next := Reduce(s, mustEvent(t, EventShowVotes, ShowVotesPayload{ShowVotes: true}))
	require.NotSame(t, s, next)
	assert.True(t, next.ShowVotes)

	assert.Same(t, next, Reduce(next, mustEvent(t, EventShowVotes, ShowVotesPayload{ShowVotes: true})))
}

func TestReduceResetVotesAtomic(t *testing.T) {
	s := baseSnapshot()
	s.ShowVotes = true
	s.StructuredVotes = map[string]StructuredVote{"alice": NewStructuredVote(nil)}
	s.JudgeScore = json.RawMessage(`"5"`)
	s.JudgeMetadata = json.RawMessage(`{"confidence":0.9}`)

	next := Reduce(s, Event{Type: EventResetVotes})
	require.NotSame(t, s, next)
	assert.Empty(t, next.Votes)
	assert.Empty(t, next.StructuredVotes)
	assert.False(t, next.ShowVotes)
	assert.Nil(t, next.JudgeScore)
	assert.Nil(t, next.JudgeMetadata)

	// Users and settings survive the round boundary.
	assert.Equal(t, s.Users, next.Users)
	assert.Equal(t, s.Settings, next.Settings)
}

func TestReduceResetVotesAlwaysAllocates(t *testing.T) {
	// Even a round already at rest must produce a fresh value so listeners
	// observe the boundary.
	s := &Snapshot{Key: "r", Users: []string{"a"}, Settings: DefaultSettings()}
	next := Reduce(s, Event{Type: EventResetVotes})
	assert.NotSame(t, s, next)
}

func TestReduceSettingsUpdated(t *testing.T) {
	s := baseSnapshot()
	updated := DefaultSettings()
	updated.EstimateOptions = []string{"XS", "S", "M", "L"}

	next := Reduce(s, mustEvent(t, EventSettingsUpdated, updated))
	require.NotSame(t, s, next)
	assert.Equal(t, []string{"XS", "S", "M", "L"}, next.Settings.EstimateOptions)

	// Re-sending equal settings is an identity no-op.
	assert.Same(t, next, Reduce(next, mustEvent(t, EventSettingsUpdated, updated)))
}

func TestReduceJudgeScore(t *testing.T) {
	s := baseSnapshot()
	next := Reduce(s, mustEvent(t, EventJudgeScoreUpdated, JudgeScorePayload{
		Score:    json.RawMessage(`"8"`),
		Metadata: json.RawMessage(`{"reasoning":"high unknowns"}`),
	}))
	require.NotSame(t, s, next)
	assert.JSONEq(t, `"8"`, string(next.JudgeScore))

	// Omitted fields reset the verdict.
	cleared := Reduce(next, Event{Type: EventJudgeScoreUpdated})
	require.NotSame(t, next, cleared)
	assert.Nil(t, cleared.JudgeScore)
	assert.Nil(t, cleared.JudgeMetadata)

	// Clearing an already-clear verdict: identity.
	assert.Same(t, cleared, Reduce(cleared, Event{Type: EventJudgeScoreUpdated}))
}

func TestReducePassThrough(t *testing.T) {
	s := baseSnapshot()
	ticket := json.RawMessage(`{"key":"PROJ-42","summary":"do the thing"}`)

	next := Reduce(s, Event{Type: EventTicketUpdated, Data: ticket})
	require.NotSame(t, s, next)
	assert.JSONEq(t, string(ticket), string(next.Ticket))

	// Key present with an empty value is "set", not "clear".
	empty := Reduce(next, Event{Type: EventTicketUpdated, Data: json.RawMessage(`{}`)})
	require.NotSame(t, next, empty)
	assert.JSONEq(t, `{}`, string(empty.Ticket))

	// Absent data clears the field.
	cleared := Reduce(empty, Event{Type: EventTicketUpdated})
	require.NotSame(t, empty, cleared)
	assert.Nil(t, cleared.Ticket)

	assert.Same(t, cleared, Reduce(cleared, Event{Type: EventTicketUpdated}))
}

func TestReduceUnknownEventType(t *testing.T) {
	s := baseSnapshot()
	assert.Same(t, s, Reduce(s, Event{Type: "serverGossip", Data: json.RawMessage(`{"x":1}`)}))
}

func TestReduceMalformedPayload(t *testing.T) {
	s := baseSnapshot()
	for _, typ := range []EventType{EventUserJoined, EventUserLeft, EventUserConnectionStatus, EventNewModerator, EventVote, EventShowVotes, EventSettingsUpdated, EventJudgeScoreUpdated} {
		assert.Same(t, s, Reduce(s, Event{Type: typ, Data: json.RawMessage(`{broken`)}), "type %s", typ)
	}
}

func TestMembershipInvariant(t *testing.T) {
	events := []Event{
		mustEvent(t, EventUserJoined, UserJoinedPayload{User: "carol"}),
		mustEvent(t, EventVote, VotePayload{User: "carol", Vote: strPtr("3")}),
		mustEvent(t, EventVote, VotePayload{User: "ghost", Vote: strPtr("5")}),
		mustEvent(t, EventUserLeft, UserLeftPayload{User: "alice"}),
		mustEvent(t, EventShowVotes, ShowVotesPayload{ShowVotes: true}),
		{Type: EventResetVotes},
		mustEvent(t, EventVote, VotePayload{User: "bob", Vote: strPtr("8")}),
	}

	s := baseSnapshot()
	for _, ev := range events {
		s = Reduce(s, ev)
		require.NotNil(t, s)
		for user := range s.Votes {
			assert.True(t, s.HasUser(user), "vote key %q not in users after %s", user, ev.Type)
		}
	}
}
