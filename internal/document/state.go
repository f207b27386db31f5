package document

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pscheid92/teamdraft/internal/domain"
)

// Version is the only state version accepted on decode.
const Version = 1

const blockLang = "DRAFT_STATE"

// blockRE matches a state block, optionally wrapped in spoiler markers.
var blockRE = regexp.MustCompile("(?:\\|\\|)?```" + blockLang + `\s*\n([\s\S]*?)\n` + "```(?:\\|\\|)?")

type wireLock struct {
	By    string `json:"by"`
	Until int64  `json:"until"`
}

type wireSlot struct {
	ID       int64  `json:"id"`
	UserID   string `json:"userId"`
	JoinedAt int64  `json:"joinedAt"`
	Team     string `json:"team,omitempty"`
}

type wireResult struct {
	Seed       string   `json:"seed"`
	TeamA      []string `json:"teamA"`
	TeamB      []string `json:"teamB"`
	Substitute []string `json:"substitute,omitempty"`
}

type wireState struct {
	V   int    `json:"v"`
	ID  string `json:"id"`
	Rev int64  `json:"rev"`

	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	OwnerID   string `json:"ownerId"`
	Title     string `json:"title"`
	Status    string `json:"status"`

	Seed            *string `json:"seed,omitempty"`
	GenerationCount int     `json:"generationCount"`
	RosterVersion   int64   `json:"rosterVersion"`
	LastActiveSig   string  `json:"lastActiveSig,omitempty"`
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`

	Slots []wireSlot `json:"slots"`
	Lock  *wireLock  `json:"lock,omitempty"`

	// Legacy roster representation, read only when Slots is absent.
	Players []string    `json:"players,omitempty"`
	Pending []string    `json:"pending,omitempty"`
	Result  *wireResult `json:"result,omitempty"`
}

// Encode renders doc as a spoiler-wrapped state block.
func Encode(doc domain.Document) (string, error) {
	s := doc.Snapshot.Session
	w := wireState{
		V:               Version,
		ID:              s.ID,
		Rev:             doc.Revision,
		GuildID:         s.Scope.GuildID,
		ChannelID:       s.Scope.ChannelID,
		OwnerID:         s.OwnerID,
		Title:           s.Title,
		Status:          string(s.Status),
		Seed:            s.Seed,
		GenerationCount: s.GenerationCount,
		RosterVersion:   s.RosterVersion,
		LastActiveSig:   s.LastActiveSignature,
		CreatedAt:       s.CreatedAt.UnixMilli(),
		UpdatedAt:       s.UpdatedAt.UnixMilli(),
		Slots:           make([]wireSlot, 0, len(doc.Snapshot.Slots)),
	}
	for _, slot := range doc.Snapshot.Slots {
		w.Slots = append(w.Slots, wireSlot{
			ID:       slot.ID,
			UserID:   slot.UserID,
			JoinedAt: slot.JoinedAt.UnixMilli(),
			Team:     string(slot.Team),
		})
	}
	if doc.Lock != nil {
		w.Lock = &wireLock{By: doc.Lock.By, Until: doc.Lock.Until.UnixMilli()}
	}

	payload, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to marshal draft state: %w", err)
	}
	return "||```" + blockLang + "\n" + string(payload) + "\n```||", nil
}

// Decode returns the last block in content that parses with a supported version.
// It reports false when there is no usable state.
func Decode(content string) (*domain.Document, bool) {
	matches := blockRE.FindAllStringSubmatch(content, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		var w wireState
		if err := json.Unmarshal([]byte(matches[i][1]), &w); err != nil {
			continue
		}
		if w.V != Version {
			continue
		}
		return w.toDocument(), true
	}
	return nil, false
}

// Upsert removes every state block from content and appends one for doc.
func Upsert(content string, doc domain.Document) (string, error) {
	block, err := Encode(doc)
	if err != nil {
		return "", err
	}
	rest := strings.TrimSpace(blockRE.ReplaceAllString(content, ""))
	if rest == "" {
		return block, nil
	}
	return rest + "\n\n" + block, nil
}

func (w *wireState) toDocument() *domain.Document {
	doc := &domain.Document{
		Revision: w.Rev,
		Snapshot: domain.Snapshot{
			Session: domain.Session{
				ID:                  w.ID,
				Scope:               domain.Scope{GuildID: w.GuildID, ChannelID: w.ChannelID},
				OwnerID:             w.OwnerID,
				Title:               w.Title,
				Status:              domain.ParseStatus(w.Status),
				Seed:                w.Seed,
				GenerationCount:     w.GenerationCount,
				RosterVersion:       w.RosterVersion,
				LastActiveSignature: w.LastActiveSig,
				CreatedAt:           time.UnixMilli(w.CreatedAt).UTC(),
				UpdatedAt:           time.UnixMilli(w.UpdatedAt).UTC(),
			},
		},
	}
	if w.Lock != nil {
		doc.Lock = &domain.Lock{By: w.Lock.By, Until: time.UnixMilli(w.Lock.Until).UTC()}
	}

	if w.Slots != nil {
		for _, s := range w.Slots {
			doc.Snapshot.Slots = append(doc.Snapshot.Slots, domain.Slot{
				ID:        s.ID,
				SessionID: w.ID,
				UserID:    s.UserID,
				JoinedAt:  time.UnixMilli(s.JoinedAt).UTC(),
				Team:      domain.ParseTeam(s.Team),
			})
		}
		return doc
	}

	w.migrateLegacy(doc)
	return doc
}

// migrateLegacy rebuilds slots from the players/pending/result lists. Both the pending list
// and the older substitute list become bench slots.
func (w *wireState) migrateLegacy(doc *domain.Document) {
	team := map[string]domain.Team{}
	if w.Result != nil {
		seed := w.Result.Seed
		doc.Snapshot.Session.Seed = &seed
		for _, id := range w.Result.TeamA {
			team[id] = domain.TeamA
		}
		for _, id := range w.Result.TeamB {
			team[id] = domain.TeamB
		}
		for _, id := range w.Result.Substitute {
			team[id] = domain.TeamBench
		}
	}
	for _, id := range w.Pending {
		team[id] = domain.TeamBench
	}

	seen := map[string]struct{}{}
	order := make([]string, 0, len(w.Players)+len(w.Pending))
	for _, list := range [][]string{w.Players, w.Pending} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			order = append(order, id)
		}
	}
	if w.Result != nil {
		for _, id := range w.Result.Substitute {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				order = append(order, id)
			}
		}
	}

	joined := doc.Snapshot.Session.CreatedAt
	collecting := doc.Snapshot.Session.Status == domain.StatusCollecting
	for i, id := range order {
		t := team[id]
		switch {
		case collecting:
			t = domain.TeamNone
		case w.Result != nil && t == domain.TeamNone:
			t = domain.TeamBench
		}
		doc.Snapshot.Slots = append(doc.Snapshot.Slots, domain.Slot{
			ID:        int64(i + 1),
			SessionID: w.ID,
			UserID:    id,
			JoinedAt:  joined,
			Team:      t,
		})
	}
	doc.Snapshot.Session.RosterVersion = max(doc.Snapshot.Session.RosterVersion, int64(len(order)))
}
