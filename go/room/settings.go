package room

import "github.com/pointcasthq/pointcast/go/scoring"

// DefaultUnsureToken is the vote value excluded from numeric aggregation
// when the room settings do not name their own.
const DefaultUnsureToken = "?"

// OptionMeta carries per-option display hints. Opaque to the reducer
// beyond wholesale replacement with the rest of the settings.
type OptionMeta struct {
	Label string `json:"label,omitempty"`
	Color string `json:"color,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

// Permissions are the room-level permission flags. Enforcement happens
// server-side; they are carried here so consumers can shape their UI.
type Permissions struct {
	AnyoneCanReveal       bool `json:"anyoneCanReveal"`
	AnyoneCanReset        bool `json:"anyoneCanReset"`
	AnyoneCanEditSettings bool `json:"anyoneCanEditSettings"`
}

// Settings is the active configuration for a room. The reducer replaces it
// wholesale on settingsUpdated; partial merges are the emitter's job.
type Settings struct {
	EstimateOptions  []string              `json:"estimateOptions"`
	OptionMeta       map[string]OptionMeta `json:"optionMeta,omitempty"`
	StructuredVoting bool                  `json:"structuredVoting"`
	Criteria         []scoring.Criterion   `json:"criteria,omitempty"`
	Permissions      Permissions           `json:"permissions"`
	JudgeEnabled     bool                  `json:"judgeEnabled"`
	UnsureToken      string                `json:"unsureToken,omitempty"`
}

// DefaultSettings returns the configuration a room starts with before the
// server announces one.
func DefaultSettings() Settings {
	return Settings{
		EstimateOptions: []string{"1", "2", "3", "5", "8", "13", DefaultUnsureToken},
		Criteria:        scoring.DefaultCriteria(),
		Permissions: Permissions{
			AnyoneCanReveal: true,
			AnyoneCanReset:  true,
		},
	}
}

// Unsure returns the vote token treated as "unsure" for aggregation.
func (s Settings) Unsure() string {
	if s.UnsureToken != "" {
		return s.UnsureToken
	}
	return DefaultUnsureToken
}
