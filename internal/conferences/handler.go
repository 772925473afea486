package conferences

import (
	"context"
	"errors"
	"io"
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

const dateLayout = "2006-01-02"

// CreateRequest is the body for POST /conference.
type CreateRequest struct {
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	Topics       []string `json:"topics"`
	City         string   `json:"city"`
	StartDate    string   `json:"start_date"` // YYYY-MM-DD
	EndDate      string   `json:"end_date"`
	MaxAttendees int      `json:"max_attendees" binding:"min=0"`
}

// Notifier is told about newly created conferences.
type Notifier interface {
	ConferenceCreated(ctx context.Context, recipient string, c *models.Conference) error
}

// Handler handles conference HTTP endpoints.
type Handler struct {
	store        store.Store
	registration *registration.Service
	notifier     Notifier
	logger       *zap.Logger
}

// NewHandler creates a conference handler. notifier may be nil.
func NewHandler(st store.Store, reg *registration.Service, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: st, registration: reg, notifier: notifier, logger: logger}
}

func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, apperr.BadRequest("invalid " + field + ", expected YYYY-MM-DD")
	}
	return &t, nil
}

func (r CreateRequest) conference(organizerID string) (*models.Conference, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", r.EndDate)
	if err != nil {
		return nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, apperr.BadRequest("end_date is before start_date")
	}
	topics := make([]string, 0, len(r.Topics))
	for _, t := range r.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return &models.Conference{
		Key:             models.ConferenceKey{OrganizerID: organizerID},
		Name:            name,
		Description:     r.Description,
		City:            strings.TrimSpace(r.City),
		Topics:          topics,
		OrganizerUserID: organizerID,
		StartDate:       start,
		EndDate:         end,
		Month:           models.MonthOf(start),
		MaxAttendees:    r.MaxAttendees,
		SeatsAvailable:  r.MaxAttendees,
	}, nil
}

// Create handles POST /conference.
func (h *Handler) Create(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if !id.Authenticated() {
		response.Error(c, registration.ErrUnauthorized)
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	conf, err := req.conference(id.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	var recipient string
	err = h.store.RunInTx(ctx, func(q store.Querier) error {
		if _, err := q.CreateProfileIfAbsent(ctx, models.NewProfile(id.UserID, id.Email)); err != nil {
			return err
		}
		profile, err := q.GetProfile(ctx, id.UserID)
		if err != nil {
			return err
		}
		conf.OrganizerDisplayName = profile.DisplayName
		recipient = profile.MainEmail
		return q.CreateConference(ctx, conf)
	})
	if err != nil {
		h.logger.Error("create conference", zap.String("user_id", id.UserID), zap.Error(err))
		response.Internal(c, "failed to create conference")
		return
	}
	h.logger.Info("conference created", zap.String("conference", conf.Key.String()), zap.String("user_id", id.UserID))

	if h.notifier != nil {
		if recipient == "" {
			recipient = id.Email
		}
		if err := h.notifier.ConferenceCreated(ctx, recipient, conf); err != nil {
			h.logger.Warn("queue confirmation e-mail", zap.String("conference", conf.Key.String()), zap.Error(err))
		}
	}
	response.Created(c, conf)
}

// Get handles GET /conference/:key.
func (h *Handler) Get(c *gin.Context) {
	websafeKey := c.Param("key")
	key, err := models.ParseConferenceKey(websafeKey)
	if err != nil {
		response.BadRequest(c, "malformed conference key: "+websafeKey)
		return
	}
	conf, err := h.store.GetConference(c.Request.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(c, "no conference found with key: "+websafeKey)
		return
	}
	if err != nil {
		h.logger.Error("get conference", zap.Error(err))
		response.Internal(c, "failed to load conference")
		return
	}
	response.OK(c, conf)
}

// Query handles POST /queryConferences. An empty body lists every conference.
func (h *Handler) Query(c *gin.Context) {
	var q models.ConferenceQuery
	if err := c.ShouldBindJSON(&q); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := q.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	list, err := h.store.QueryConferences(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("query conferences", zap.Error(err))
		response.Internal(c, "failed to query conferences")
		return
	}
	response.OK(c, list)
}

// ListCreated handles GET /getConferencesCreated.
func (h *Handler) ListCreated(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if !id.Authenticated() {
		response.Error(c, registration.ErrUnauthorized)
		return
	}
	list, err := h.store.ListConferencesByOrganizer(c.Request.Context(), id.UserID)
	if err != nil {
		h.logger.Error("list created conferences", zap.Error(err))
		response.Internal(c, "failed to list conferences")
		return
	}
	response.OK(c, list)
}

// ListToAttend handles GET /getConferencesToAttend.
func (h *Handler) ListToAttend(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if !id.Authenticated() {
		response.Error(c, registration.ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()
	profile, err := h.store.GetProfile(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(c, registration.ErrProfileNotFound)
		return
	}
	if err != nil {
		h.logger.Error("load profile", zap.Error(err))
		response.Internal(c, "failed to load profile")
		return
	}
	keys := make([]models.ConferenceKey, 0, len(profile.ConferenceKeysToAttend))
	for _, s := range profile.ConferenceKeysToAttend {
		k, err := models.ParseConferenceKey(s)
		if err != nil {
			h.logger.Warn("skip malformed attendance key", zap.String("key", s))
			continue
		}
		keys = append(keys, k)
	}
	list, err := h.store.ListConferencesByKeys(ctx, keys)
	if err != nil {
		h.logger.Error("list attended conferences", zap.Error(err))
		response.Internal(c, "failed to list conferences")
		return
	}
	response.OK(c, list)
}

// Register handles POST /conference/:key/registration.
func (h *Handler) Register(c *gin.Context) {
	res, err := h.registration.Register(c.Request.Context(), middleware.IdentityFrom(c), c.Param("key"))
	h.registrationResponse(c, res, err)
}

// Unregister handles DELETE /conference/:key/registration.
func (h *Handler) Unregister(c *gin.Context) {
	res, err := h.registration.Unregister(c.Request.Context(), middleware.IdentityFrom(c), c.Param("key"))
	h.registrationResponse(c, res, err)
}

// registrationResponse reports unclassified registration failures as 403.
func (h *Handler) registrationResponse(c *gin.Context, res registration.Result, err error) {
	if err == nil {
		response.OK(c, res)
		return
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		err = apperr.Wrap(apperr.KindForbidden, res.Reason, err)
	}
	response.ErrorWithData(c, err, res)
}
