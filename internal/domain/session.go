package domain

import "time"

type Status string

const (
	StatusCollecting Status = "collecting"
	StatusFinished   Status = "finished"
	StatusStopped    Status = "stopped"
)

// ParseStatus returns the status for s, defaulting to collecting for unknown values.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusFinished:
		return StatusFinished
	case StatusStopped:
		return StatusStopped
	default:
		return StatusCollecting
	}
}

// Team is a slot's assignment. TeamNone is only valid while a session is collecting.
type Team string

const (
	TeamNone  Team = ""
	TeamA     Team = "A"
	TeamB     Team = "B"
	TeamBench Team = "BENCH"
)

// ParseTeam maps a stored team value to a Team; anything unrecognised is TeamNone.
func ParseTeam(s string) Team {
	switch Team(s) {
	case TeamA:
		return TeamA
	case TeamB:
		return TeamB
	case TeamBench:
		return TeamBench
	default:
		return TeamNone
	}
}

// Scope identifies the community and channel a session was started in.
type Scope struct {
	GuildID   string
	ChannelID string
}

type Session struct {
	ID      string
	Scope   Scope
	OwnerID string
	Title   string
	Status  Status

	// Seed is nil until the first draw.
	Seed                *string
	GenerationCount     int
	RosterVersion       int64
	LastActiveSignature string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Drawn reports whether a randomization has ever been applied to the session.
func (s *Session) Drawn() bool {
	return s.Seed != nil
}

type Slot struct {
	ID        int64
	SessionID string
	UserID    string
	JoinedAt  time.Time
	Team      Team
}

// Snapshot is a session together with its roster ordered by (JoinedAt, ID).
// Slots with ID 0 have not been persisted yet.
type Snapshot struct {
	Session Session
	Slots   []Slot
}

// Clone returns a deep copy so callers can mutate the result freely.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Session: s.Session, Slots: make([]Slot, len(s.Slots))}
	copy(out.Slots, s.Slots)
	if s.Session.Seed != nil {
		seed := *s.Session.Seed
		out.Session.Seed = &seed
	}
	return out
}

// View is the display-ready projection of a snapshot.
type View struct {
	SessionID       string   `json:"session_id"`
	GuildID         string   `json:"guild_id"`
	ChannelID       string   `json:"channel_id"`
	OwnerID         string   `json:"owner_id"`
	Title           string   `json:"title"`
	Status          Status   `json:"status"`
	Seed            string   `json:"seed,omitempty"`
	GenerationCount int      `json:"generation_count"`
	RosterVersion   int64    `json:"roster_version"`
	Players         []string `json:"players"`
	TeamA           []string `json:"team_a"`
	TeamB           []string `json:"team_b"`
	Bench           []string `json:"bench"`
}
