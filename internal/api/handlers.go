package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nexus-backend/internal/automod"
	"nexus-backend/internal/broadcast"
	"nexus-backend/internal/ledger"
	"nexus-backend/internal/models"
	"nexus-backend/internal/moderation"
	"nexus-backend/internal/security"
	"nexus-backend/internal/session"
	"nexus-backend/internal/store"
)

func errResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// mapServiceError translates sentinel errors from the service layer into
// HTTP responses. Unknown errors are storage trouble and become a 503.
func (s *Server) mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		errResponse(c, http.StatusPaymentRequired, "insufficient_funds", "not enough points")
	case errors.Is(err, ledger.ErrInvalidAmount):
		errResponse(c, http.StatusBadRequest, "invalid_amount", "amount must not be negative")
	case errors.Is(err, store.ErrItemNotFound):
		errResponse(c, http.StatusNotFound, "item_not_found", "no such store item")
	case errors.Is(err, store.ErrAlreadyOwned):
		errResponse(c, http.StatusConflict, "already_owned", "item already in inventory")
	case errors.Is(err, store.ErrNotOwned):
		errResponse(c, http.StatusBadRequest, "not_owned", "item not in inventory")
	case errors.Is(err, store.ErrInvalidItem):
		errResponse(c, http.StatusBadRequest, "invalid_item", "item cannot be equipped")
	case errors.Is(err, moderation.ErrNotAuthenticated):
		errResponse(c, http.StatusUnauthorized, "unauthorized", "not logged in")
	case errors.Is(err, moderation.ErrForbidden):
		errResponse(c, http.StatusForbidden, "forbidden", "insufficient role")
	case errors.Is(err, automod.ErrUnknownList):
		errResponse(c, http.StatusNotFound, "unknown_list", "no such word list")
	default:
		s.log.Warn("request_failed", "path", c.Request.URL.Path, "error", err)
		errResponse(c, http.StatusServiceUnavailable, "storage_unavailable", "backing storage unavailable")
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	dbOK := s.db.Pool.Ping(ctx) == nil
	redisOK := s.redis.RDB().Ping(ctx).Err() == nil

	status := http.StatusOK
	if !dbOK || !redisOK {
		status = http.StatusServiceUnavailable
	}

	resp := gin.H{
		"ok":    dbOK && redisOK,
		"db":    dbOK,
		"redis": redisOK,
	}
	if s.hub != nil {
		resp["ws_clients"] = s.hub.ClientCount()
	}
	c.JSON(status, resp)
}

// currentSession loads (or creates) the session behind the request cookie
// and refreshes the cookie.
func (s *Server) currentSession(c *gin.Context) (*models.Session, error) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	sid, _ := c.Cookie(session.CookieName)
	sid, err := s.sessions.Ensure(ctx, sid)
	if err != nil {
		return nil, err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, sid, int((365 * 24 * time.Hour).Seconds()), "/", "", false, true)

	return s.sessions.Get(ctx, sid)
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.currentSession(c)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	resp := gin.H{
		"id":      sess.ID,
		"created": sess.CreatedAt,
	}
	if sess.User != nil {
		if _, err := s.profiles.EnsureBonuses(ctx, sess); err != nil {
			s.log.Warn("bonus_grant_failed", "user_id", sess.User.ID, "error", err)
		}

		balance, err := s.ledger.GetBalance(ctx, sess.User.ID)
		if err != nil {
			s.mapServiceError(c, err)
			return
		}
		roles, err := s.mods.Roles(ctx, sess.User.ID)
		if err != nil {
			s.mapServiceError(c, err)
			return
		}
		meta, err := s.profiles.Load(ctx, sess.User.ID, sess.User.DisplayName)
		if err != nil {
			s.mapServiceError(c, err)
			return
		}

		resp["user"] = sess.User
		resp["roles"] = roles
		resp["points"] = balance
		resp["inventory"] = meta.Inventory
		resp["avatarDecoration"] = meta.AvatarDecoration
		resp["messageDecoration"] = meta.MessageDecoration
		resp["linked"] = gin.H{
			"twitch":  sess.Twitch != nil,
			"youtube": sess.YouTube != nil,
		}
	}
	c.JSON(http.StatusOK, resp)
}

type linkRequest struct {
	Platform    string `json:"platform" binding:"required"`
	NativeID    string `json:"userId" binding:"required"`
	Login       string `json:"login"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	AccessToken string `json:"accessToken"`
}

// linkIdentity binds a verified platform login to the session. Token
// verification happens upstream in the auth worker, so this endpoint is
// gated by the same shared secret as the bridge.
func (s *Server) linkIdentity(c *gin.Context) {
	if !s.bridgeAuth(c) {
		errResponse(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bridge secret")
		return
	}

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "platform and userId are required")
		return
	}
	if err := security.ValidatePlatformID(req.NativeID); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_platform_id", err.Error())
		return
	}

	sess, err := s.currentSession(c)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	preferred := ""
	if sess.User != nil {
		preferred = sess.User.ID
	}
	userID, err := s.resolver.Resolve(ctx, req.Platform, req.NativeID, preferred)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	identity := &models.LinkedIdentity{
		ID:          req.NativeID,
		Login:       req.Login,
		Name:        req.DisplayName,
		Avatar:      req.Avatar,
		AccessToken: req.AccessToken,
	}
	switch req.Platform {
	case "twitch":
		sess.Twitch = identity
	case "youtube":
		sess.YouTube = identity
	default:
		errResponse(c, http.StatusBadRequest, "unknown_platform", "platform must be twitch or youtube")
		return
	}

	if sess.User == nil {
		sess.User = &models.SessionUser{ID: userID, DisplayName: req.DisplayName, Avatar: req.Avatar}
	}
	if err := s.ledger.EnsureAccount(ctx, userID, req.DisplayName, req.Avatar); err != nil {
		s.mapServiceError(c, err)
		return
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.mapServiceError(c, err)
		return
	}
	if _, err := s.profiles.EnsureBonuses(ctx, sess); err != nil {
		s.log.Warn("bonus_grant_failed", "user_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "userId": userID})
}

func (s *Server) logout(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	sid, _ := c.Cookie(session.CookieName)
	if sid != "" {
		if err := s.sessions.Destroy(ctx, sid); err != nil {
			s.mapServiceError(c, err)
			return
		}
	}
	c.SetCookie(session.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requireUser returns the logged-in session or writes the 401.
func (s *Server) requireUser(c *gin.Context) *models.Session {
	sess, err := s.currentSession(c)
	if err != nil {
		s.mapServiceError(c, err)
		return nil
	}
	if sess == nil || sess.User == nil || sess.User.ID == "" {
		errResponse(c, http.StatusUnauthorized, "unauthorized", "not logged in")
		return nil
	}
	return sess
}

func (s *Server) getPoints(c *gin.Context) {
	sess := s.requireUser(c)
	if sess == nil {
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	balance, err := s.ledger.GetBalance(ctx, sess.User.ID)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": balance})
}

func (s *Server) getPointEvents(c *gin.Context) {
	sess := s.requireUser(c)
	if sess == nil {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	events, err := s.ledger.Events(ctx, sess.User.ID, limit)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) listStoreItems(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	catalog, err := s.storeSvc.Catalog(ctx)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, catalog)
}

type itemRequest struct {
	ItemID string `json:"itemId" binding:"required"`
}

func (s *Server) purchaseItem(c *gin.Context) {
	sess := s.requireUser(c)
	if sess == nil {
		return
	}

	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "itemId is required")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	result, err := s.storeSvc.Purchase(ctx, sess.User.ID, req.ItemID)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	if s.hub != nil {
		s.hub.Notify(broadcast.EventRedeem, gin.H{
			"userId": sess.User.ID,
			"itemId": result.Item.ID,
			"name":   result.Item.Name,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"item":      result.Item,
		"points":    result.Balance,
		"inventory": result.Inventory,
	})
}

func (s *Server) equipItem(c *gin.Context) {
	sess := s.requireUser(c)
	if sess == nil {
		return
	}

	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "itemId is required")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	result, err := s.storeSvc.Equip(ctx, sess.User.ID, req.ItemID)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"equipped": result.Equipped,
		"type":     result.Type,
	})
}

func (s *Server) chatInbound(c *gin.Context) {
	if !s.bridgeAuth(c) {
		errResponse(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bridge secret")
		return
	}

	var msg models.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "platform, userId and message are required")
		return
	}
	if msg.Platform == "" || msg.NativeID == "" {
		errResponse(c, http.StatusBadRequest, "invalid_body", "platform and userId are required")
		return
	}

	if !s.bridgeLimiter.Allow(msg.Platform + ":" + security.ClientIPFromRequest(c.Request)) {
		errResponse(c, http.StatusTooManyRequests, "rate_limited", "bridge sending too fast")
		return
	}

	if !s.pipeline.Enqueue(msg) {
		errResponse(c, http.StatusServiceUnavailable, "queue_full", "chat pipeline saturated")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

type timeoutRequest struct {
	UserID          string `json:"userId" binding:"required"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (s *Server) modTimeout(c *gin.Context) {
	sess, err := s.currentSession(c)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if _, err := s.mods.RequireRole(ctx, sess, moderation.RoleMod); err != nil {
		s.mapServiceError(c, err)
		return
	}

	var req timeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "userId is required")
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 5
	}

	rec, err := s.mods.ApplyTimeout(ctx, req.UserID, req.Reason, models.BanKindManual,
		time.Duration(req.DurationMinutes)*time.Minute, sess.User.ID, sess.User.DisplayName)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	if s.hub != nil {
		s.hub.Notify(broadcast.EventModeration, models.TimeoutAction{
			UserID:          req.UserID,
			Reason:          req.Reason,
			DurationMinutes: req.DurationMinutes,
			Kind:            models.BanKindManual,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ban": rec})
}

type banRequest struct {
	UserID          string `json:"userId" binding:"required"`
	Reason          string `json:"reason"`
	DurationMinutes *int   `json:"durationMinutes"` // nil = permanent
}

func (s *Server) modBan(c *gin.Context) {
	sess, err := s.currentSession(c)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if _, err := s.mods.RequireRole(ctx, sess, moderation.RoleMod); err != nil {
		s.mapServiceError(c, err)
		return
	}

	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "userId is required")
		return
	}

	var duration *time.Duration
	if req.DurationMinutes != nil && *req.DurationMinutes > 0 {
		d := time.Duration(*req.DurationMinutes) * time.Minute
		duration = &d
	}

	rec, err := s.mods.Ban(ctx, req.UserID, req.Reason, duration, sess.User.ID, sess.User.DisplayName)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ban": rec})
}

func (s *Server) modUnban(c *gin.Context) {
	sess, err := s.currentSession(c)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if _, err := s.mods.RequireRole(ctx, sess, moderation.RoleMod); err != nil {
		s.mapServiceError(c, err)
		return
	}

	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "userId is required")
		return
	}

	if err := s.mods.Unban(ctx, req.UserID); err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) listBans(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	bans, err := s.mods.BanHistory(ctx)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans})
}

func (s *Server) listMods(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	mods, err := s.mods.Moderators(ctx)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mods": mods})
}

func (s *Server) addMod(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "userId is required")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.mods.AddModerator(ctx, req.UserID); err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) removeMod(c *gin.Context) {
	userID := c.Param("user_id")

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.mods.RemoveModerator(ctx, userID); err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) getWordList(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	raw, err := s.automod.WordList(ctx, c.Param("list"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": c.Param("list"), "words": raw})
}

func (s *Server) putWordList(c *gin.Context) {
	var req struct {
		Words string `json:"words"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "words is required")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.automod.SetWordList(ctx, c.Param("list"), req.Words); err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) upsertStoreItem(c *gin.Context) {
	var item models.StoreItem
	if err := c.ShouldBindJSON(&item); err != nil || item.ID == "" {
		errResponse(c, http.StatusBadRequest, "invalid_body", "item with id is required")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.storeSvc.UpsertItem(ctx, item); err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type adjustRequest struct {
	UserID string `json:"userId" binding:"required"`
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}

// adjustPoints applies an operator-issued balance change (positive or
// negative; negative deltas floor at zero like any other credit).
func (s *Server) adjustPoints(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResponse(c, http.StatusBadRequest, "invalid_body", "userId and delta are required")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "mod_adjust"
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	before, after, err := s.ledger.Credit(ctx, req.UserID, req.Delta, ledger.CreditOptions{
		Reason: reason,
		Source: "admin",
	})
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"before": before, "after": after})
}
