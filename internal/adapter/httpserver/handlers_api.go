package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/teamdraft/internal/app"
	"github.com/pscheid92/teamdraft/internal/domain"
	apperrors "github.com/pscheid92/teamdraft/internal/platform/errors"
)

func (s *Server) registerAPIRoutes(api *echo.Group) {
	api.POST("/sessions", s.handleStartSession)
	api.GET("/sessions/:ref", s.handleGetSession)
	api.POST("/sessions/:ref/actions", s.handleAction)
	api.POST("/sessions/:ref/remove", s.handleRemove)
	api.POST("/sessions/:ref/rename", s.handleRename)
}

type scopeBody struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	ActorID   string `json:"actor_id"`
}

func (b scopeBody) validate() error {
	switch {
	case strings.TrimSpace(b.GuildID) == "":
		return apperrors.ValidationError("guild_id is required")
	case strings.TrimSpace(b.ChannelID) == "":
		return apperrors.ValidationError("channel_id is required")
	case strings.TrimSpace(b.ActorID) == "":
		return apperrors.ValidationError("actor_id is required")
	}
	return nil
}

func (b scopeBody) scope() domain.Scope {
	return domain.Scope{GuildID: b.GuildID, ChannelID: b.ChannelID}
}

type startBody struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	scopeBody
}

type actionBody struct {
	Action domain.Action `json:"action"`
	scopeBody
}

type removeBody struct {
	Targets []string `json:"targets"`
	scopeBody
}

type renameBody struct {
	Title string `json:"title"`
	scopeBody
}

type outcomeResponse struct {
	View     domain.View `json:"view"`
	Removed  []string    `json:"removed,omitempty"`
	NotFound []string    `json:"not_found,omitempty"`
	Deleted  bool        `json:"deleted"`
	Attempts int         `json:"attempts"`
}

func toOutcomeResponse(out *domain.Outcome) outcomeResponse {
	return outcomeResponse{
		View:     out.View,
		Removed:  out.Removed,
		NotFound: out.NotFound,
		Deleted:  out.Deleted,
		Attempts: out.Attempts,
	}
}

func bind(c echo.Context, body any) error {
	if err := c.Bind(body); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	return nil
}

func sessionRef(c echo.Context) (string, error) {
	raw := c.Param("ref")
	id, ok := app.ParseSessionRef(raw)
	if !ok {
		return "", apperrors.ValidationError("invalid session reference").WithField("ref", raw)
	}
	return id, nil
}

func (s *Server) handleStartSession(c echo.Context) error {
	var body startBody
	if err := bind(c, &body); err != nil {
		return err
	}
	if err := body.validate(); err != nil {
		return err
	}

	view, err := s.app.Start(c.Request().Context(), app.StartRequest{
		SessionID: body.SessionID,
		Scope:     body.scope(),
		OwnerID:   body.ActorID,
		Title:     body.Title,
	})
	if err != nil {
		return apperrors.FromDomain(err).WithField("session_id", body.SessionID)
	}

	if err := c.JSON(http.StatusCreated, view); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleGetSession takes the scope from the query string; a session in another guild or
// channel is reported as not found.
func (s *Server) handleGetSession(c echo.Context) error {
	id, err := sessionRef(c)
	if err != nil {
		return err
	}
	scope := domain.Scope{
		GuildID:   strings.TrimSpace(c.QueryParam("guild_id")),
		ChannelID: strings.TrimSpace(c.QueryParam("channel_id")),
	}
	switch {
	case scope.GuildID == "":
		return apperrors.ValidationError("guild_id is required")
	case scope.ChannelID == "":
		return apperrors.ValidationError("channel_id is required")
	}

	view, err := s.app.Get(c.Request().Context(), id, scope)
	if err != nil {
		return apperrors.FromDomain(err).WithField("session_id", id)
	}

	if err := c.JSON(http.StatusOK, view); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAction(c echo.Context) error {
	id, err := sessionRef(c)
	if err != nil {
		return err
	}
	var body actionBody
	if err := bind(c, &body); err != nil {
		return err
	}
	if err := body.validate(); err != nil {
		return err
	}
	if err := s.actions.allow(id, body.ActorID); err != nil {
		return err
	}

	out, err := s.app.Dispatch(c.Request().Context(), domain.Request{
		SessionID: id,
		Scope:     body.scope(),
		ActorID:   body.ActorID,
		Action:    body.Action,
	})
	if err != nil {
		return apperrors.FromDomain(err).WithField("session_id", id).WithField("action", string(body.Action))
	}
	return s.writeOutcome(c, out)
}

func (s *Server) handleRemove(c echo.Context) error {
	id, err := sessionRef(c)
	if err != nil {
		return err
	}
	var body removeBody
	if err := bind(c, &body); err != nil {
		return err
	}
	if err := body.validate(); err != nil {
		return err
	}
	if err := s.actions.allow(id, body.ActorID); err != nil {
		return err
	}
	if len(body.Targets) == 0 {
		return apperrors.ValidationError("targets is required")
	}

	out, err := s.app.RemovePlayers(c.Request().Context(), id, body.scope(), body.ActorID, body.Targets)
	if err != nil {
		return apperrors.FromDomain(err).WithField("session_id", id)
	}
	return s.writeOutcome(c, out)
}

func (s *Server) handleRename(c echo.Context) error {
	id, err := sessionRef(c)
	if err != nil {
		return err
	}
	var body renameBody
	if err := bind(c, &body); err != nil {
		return err
	}
	if err := body.validate(); err != nil {
		return err
	}
	if err := s.actions.allow(id, body.ActorID); err != nil {
		return err
	}

	out, err := s.app.Rename(c.Request().Context(), id, body.scope(), body.ActorID, body.Title)
	if err != nil {
		return apperrors.FromDomain(err).WithField("session_id", id)
	}
	return s.writeOutcome(c, out)
}

func (s *Server) writeOutcome(c echo.Context, out *domain.Outcome) error {
	if err := c.JSON(http.StatusOK, toOutcomeResponse(out)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
