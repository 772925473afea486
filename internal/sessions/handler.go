// Package sessions serves the sessions of a conference.
package sessions

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conference-central/backend/internal/apperr"
	"github.com/conference-central/backend/internal/middleware"
	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/registration"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/pkg/response"
)

const (
	dateLayout      = "02/01/2006"
	startTimeLayout = "15:04"
)

// CreateRequest is the body for POST /conference/:key/sessions.
type CreateRequest struct {
	Name            string `json:"name" binding:"required"`
	Highlights      string `json:"highlights"`
	Speaker         string `json:"speaker"`
	DurationMinutes int64  `json:"duration_minutes" binding:"min=0"`
	TypeOfSession   string `json:"type_of_session"`
	Date            string `json:"date"`       // dd/MM/yyyy
	StartTime       string `json:"start_time"` // HH:MM, 24h
}

func (r CreateRequest) session(conf models.ConferenceKey) (*models.Session, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	typ := models.SessionNotSpecified
	if r.TypeOfSession != "" {
		typ = models.TypeOfSession(strings.ToUpper(r.TypeOfSession))
		if !typ.Valid() {
			return nil, apperr.BadRequest("invalid type_of_session: " + r.TypeOfSession)
		}
	}
	s := &models.Session{
		ConferenceKey:   conf,
		Name:            name,
		Highlights:      r.Highlights,
		Speaker:         strings.TrimSpace(r.Speaker),
		DurationMinutes: r.DurationMinutes,
		TypeOfSession:   typ,
	}
	if r.Date != "" {
		d, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			return nil, apperr.BadRequest("invalid date, expected dd/MM/yyyy")
		}
		s.Date = &d
	}
	if r.StartTime != "" {
		t, err := time.Parse(startTimeLayout, r.StartTime)
		if err != nil {
			return nil, apperr.BadRequest("invalid start_time, expected HH:MM")
		}
		s.StartTime = t.Format(startTimeLayout)
	}
	return s, nil
}

// Handler handles session HTTP endpoints.
type Handler struct {
	store  store.Store
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(st store.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: st, logger: logger}
}

// Create handles POST /conference/:key/sessions. Only the organizer may add sessions.
func (h *Handler) Create(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if !id.Authenticated() {
		response.Error(c, registration.ErrUnauthorized)
		return
	}
	websafeKey := c.Param("key")
	key, err := models.ParseConferenceKey(websafeKey)
	if err != nil {
		response.BadRequest(c, "malformed conference key: "+websafeKey)
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := req.session(key)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	err = h.store.RunInTx(ctx, func(q store.Querier) error {
		conf, err := q.GetConference(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("no conference found with key: " + websafeKey)
		}
		if err != nil {
			return err
		}
		if conf.OrganizerUserID != id.UserID {
			return apperr.Forbidden("only the organizer can create sessions")
		}
		return q.CreateSession(ctx, s)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("create session", zap.String("conference", websafeKey), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	h.logger.Info("session created", zap.String("session", s.Key.String()), zap.String("user_id", id.UserID))
	response.Created(c, s)
}

// List handles GET /conference/:key/sessions with optional type and speaker filters.
func (h *Handler) List(c *gin.Context) {
	websafeKey := c.Param("key")
	key, err := models.ParseConferenceKey(websafeKey)
	if err != nil {
		response.BadRequest(c, "malformed conference key: "+websafeKey)
		return
	}
	filter := models.SessionFilter{Speaker: strings.TrimSpace(c.Query("speaker"))}
	if t := c.Query("type"); t != "" {
		filter.Type = models.TypeOfSession(strings.ToUpper(t))
		if !filter.Type.Valid() {
			response.BadRequest(c, "invalid type: "+t)
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetConference(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "no conference found with key: "+websafeKey)
			return
		}
		h.logger.Error("get conference", zap.Error(err))
		response.Internal(c, "failed to load conference")
		return
	}
	list, err := h.store.ListSessions(ctx, key, filter)
	if err != nil {
		h.logger.Error("list sessions", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, list)
}
