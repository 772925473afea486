// Package profiles serves the caller's profile and session wishlist.
package profiles

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conference-central/backend/internal/apperr"
	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/internal/middleware"
	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/registration"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/pkg/response"
)

// SaveRequest is the body for POST /profile. Empty fields keep their value.
type SaveRequest struct {
	DisplayName  string `json:"display_name"`
	TeeShirtSize string `json:"tee_shirt_size"`
}

// WishlistResult is the outcome of a wishlist change.
type WishlistResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// Handler handles profile and wishlist endpoints.
type Handler struct {
	store  store.Store
	logger *zap.Logger
}

// NewHandler creates a profile handler.
func NewHandler(st store.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: st, logger: logger}
}

func identity(c *gin.Context) (auth.Identity, bool) {
	id := middleware.IdentityFrom(c)
	if !id.Authenticated() {
		response.Error(c, registration.ErrUnauthorized)
		return id, false
	}
	return id, true
}

// Get handles GET /profile.
func (h *Handler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	p, err := h.store.GetProfile(c.Request.Context(), id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(c, registration.ErrProfileNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get profile", zap.Error(err))
		response.Internal(c, "failed to load profile")
		return
	}
	response.OK(c, p)
}

// Save handles POST /profile: creates the profile with defaults or updates it.
func (h *Handler) Save(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	size := models.TeeShirtSize(strings.ToUpper(strings.TrimSpace(req.TeeShirtSize)))
	if size != "" && !size.Valid() {
		response.BadRequest(c, "invalid tee_shirt_size: "+req.TeeShirtSize)
		return
	}

	ctx := c.Request.Context()
	var saved *models.Profile
	err := h.store.RunInTx(ctx, func(q store.Querier) error {
		p, err := q.GetProfile(ctx, id.UserID)
		if errors.Is(err, store.ErrNotFound) {
			p = models.NewProfile(id.UserID, id.Email)
		} else if err != nil {
			return err
		}
		if name := strings.TrimSpace(req.DisplayName); name != "" {
			p.DisplayName = name
		}
		if size != "" {
			p.TeeShirtSize = size
		}
		if p.MainEmail == "" {
			p.MainEmail = id.Email
		}
		if err := q.SaveProfile(ctx, p); err != nil {
			return err
		}
		saved, err = q.GetProfile(ctx, id.UserID)
		return err
	})
	if err != nil {
		h.logger.Error("save profile", zap.String("user_id", id.UserID), zap.Error(err))
		response.Internal(c, "failed to save profile")
		return
	}
	response.OK(c, saved)
}

// AddToWishlist handles POST /wishlist/:sessionKey.
func (h *Handler) AddToWishlist(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	websafeKey := c.Param("sessionKey")
	key, err := models.ParseSessionKey(websafeKey)
	if err != nil {
		response.BadRequest(c, "malformed session key: "+websafeKey)
		return
	}
	ctx := c.Request.Context()
	var added bool
	err = h.store.RunInTx(ctx, func(q store.Querier) error {
		if _, err := q.GetSession(ctx, key); errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("no session found with key: " + websafeKey)
		} else if err != nil {
			return err
		}
		if _, err := q.CreateProfileIfAbsent(ctx, models.NewProfile(id.UserID, id.Email)); err != nil {
			return err
		}
		added, err = q.AddToWishlist(ctx, id.UserID, key)
		return err
	})
	if err != nil {
		h.fail(c, "add to wishlist", err)
		return
	}
	res := WishlistResult{Success: true, Reason: "added to wishlist"}
	if !added {
		res.Reason = "already in wishlist"
	}
	response.OK(c, res)
}

// RemoveFromWishlist handles DELETE /wishlist/:sessionKey.
func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	websafeKey := c.Param("sessionKey")
	key, err := models.ParseSessionKey(websafeKey)
	if err != nil {
		response.BadRequest(c, "malformed session key: "+websafeKey)
		return
	}
	ctx := c.Request.Context()
	var removed bool
	err = h.store.RunInTx(ctx, func(q store.Querier) error {
		if _, err := q.CreateProfileIfAbsent(ctx, models.NewProfile(id.UserID, id.Email)); err != nil {
			return err
		}
		removed, err = q.RemoveFromWishlist(ctx, id.UserID, key)
		return err
	})
	if err != nil {
		h.fail(c, "remove from wishlist", err)
		return
	}
	res := WishlistResult{Success: true, Reason: "removed from wishlist"}
	if !removed {
		res.Reason = "not in wishlist"
	}
	response.OK(c, res)
}

// Wishlist handles GET /wishlist.
func (h *Handler) Wishlist(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	p, err := h.store.GetProfile(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		response.OK(c, []models.Session{})
		return
	}
	if err != nil {
		h.fail(c, "load profile", err)
		return
	}
	keys := make([]models.SessionKey, 0, len(p.SessionKeysInWishlist))
	for _, s := range p.SessionKeysInWishlist {
		if k, err := models.ParseSessionKey(s); err == nil {
			keys = append(keys, k)
		}
	}
	list, err := h.store.ListSessionsByKeys(ctx, keys)
	if err != nil {
		h.fail(c, "list wishlist", err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error(op, zap.Error(err))
	}
	response.Error(c, err)
}
