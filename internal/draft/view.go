package draft

import "github.com/pscheid92/teamdraft/internal/domain"

// Project renders a snapshot for display. Collecting sessions, and stopped sessions that
// were never drawn, list the whole roster as players.
func Project(snap domain.Snapshot) domain.View {
	s := snap.Session
	v := domain.View{
		SessionID:       s.ID,
		GuildID:         s.Scope.GuildID,
		ChannelID:       s.Scope.ChannelID,
		OwnerID:         s.OwnerID,
		Title:           s.Title,
		Status:          s.Status,
		GenerationCount: s.GenerationCount,
		RosterVersion:   s.RosterVersion,
		Players:         []string{},
		TeamA:           []string{},
		TeamB:           []string{},
		Bench:           []string{},
	}
	if s.Seed != nil {
		v.Seed = *s.Seed
	}

	partition := s.Status == domain.StatusFinished || (s.Status == domain.StatusStopped && s.Drawn())
	for _, slot := range snap.Slots {
		if !partition {
			v.Players = append(v.Players, slot.UserID)
			continue
		}
		switch slot.Team {
		case domain.TeamA:
			v.TeamA = append(v.TeamA, slot.UserID)
		case domain.TeamB:
			v.TeamB = append(v.TeamB, slot.UserID)
		case domain.TeamBench:
			v.Bench = append(v.Bench, slot.UserID)
		default:
			v.Players = append(v.Players, slot.UserID)
		}
	}
	return v
}
