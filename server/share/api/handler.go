package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"share_server/server/common/metrics"
	"share_server/server/common/middleware"
	"share_server/server/common/transport/httpresp"
	"share_server/server/share/domain"
	shareservice "share_server/server/share/service"
)

type IdentityService interface {
	FindOrCreate(ctx context.Context, deviceID string) (domain.User, bool, error)
	FindByID(ctx context.Context, userID int64) (domain.User, error)
	UpdateProfile(ctx context.Context, userID int64, upd domain.ProfileUpdate) (domain.User, error)
	Search(ctx context.Context, query string, excludeUserID int64) ([]domain.PublicUser, error)
	FindByPhones(ctx context.Context, phones []string, excludeUserID int64) ([]domain.PublicUser, error)
	InviteLink(userID int64) string
}

type ContactService interface {
	List(ctx context.Context, userID int64) ([]domain.Contact, error)
	Add(ctx context.Context, ownerID, targetID int64, mutual bool) (domain.Contact, error)
	Remove(ctx context.Context, ownerID, edgeID int64) (bool, error)
}

type MailboxService interface {
	Send(ctx context.Context, senderID, recipientID int64, title, content string) (domain.SendResult, error)
	SendMany(ctx context.Context, senderID int64, recipientIDs []int64, title, content string) ([]domain.SendResult, error)
	Inbox(ctx context.Context, userID int64) ([]domain.PendingShare, error)
	InboxItem(ctx context.Context, userID, shareID int64) (domain.PendingShare, error)
	Acknowledge(ctx context.Context, userID, shareID int64) (bool, error)
	InboxCount(ctx context.Context, userID int64) (int64, error)
	Cancel(ctx context.Context, senderID, shareID int64) (bool, error)
}

// TokenService is satisfied by *auth.Service.
type TokenService interface {
	Issue(userID int64, deviceID string) (string, time.Time, error)
	UserIDFromToken(token string) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Identity IdentityService
	Contacts ContactService
	Mailbox  MailboxService
	Tokens   TokenService
	Hub      *shareservice.Hub
	DB       Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

type Handler struct {
	identity IdentityService
	contacts ContactService
	mailbox  MailboxService
	tokens   TokenService
	hub      *shareservice.Hub
	db       Pinger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		identity: d.Identity,
		contacts: d.Contacts,
		mailbox:  d.Mailbox,
		tokens:   d.Tokens,
		hub:      d.Hub,
		db:       d.DB,
		metrics:  d.Metrics,
		gatherer: d.Gatherer,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.ready)
	r.GET("/health/ready", h.ready)
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpresp.NewStatusResponse("ok", nil))
	})
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	if h.hub != nil {
		r.GET("/ws/inbox", middleware.AuthRequiredOrQuery(h.tokens), h.handleInboxWS)
	}

	r.POST("/api/auth/device", h.authDevice)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(h.tokens))
	{
		api.GET("/contacts", h.listContacts)
		api.POST("/contacts", h.addContact)
		api.DELETE("/contacts/:id", h.removeContact)

		api.GET("/users/search", h.searchUsers)
		api.POST("/users/find-by-phones", h.findByPhones)
		api.GET("/users/me/invite-link", h.inviteLink)
		api.GET("/users/me", h.getMe)
		api.PUT("/users/me", h.updateMe)
		api.GET("/users/:id", h.getUser)

		api.GET("/inbox", h.listInbox)
		api.GET("/inbox/count", h.inboxCount)
		api.GET("/inbox/:id", h.getInboxItem)
		api.POST("/inbox/:id/ack", h.ackInboxItem)

		api.POST("/send", h.send)
		api.POST("/send/many", h.sendMany)
		api.DELETE("/send/:id", h.cancelSend)
	}
}

func (h *Handler) ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpresp.NewStatusResponse("unavailable", err))
			return
		}
	}
	c.JSON(http.StatusOK, httpresp.NewStatusResponse("ok", nil))
}

func (h *Handler) authDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	user, isNew, err := h.identity.FindOrCreate(c.Request.Context(), req.DeviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	token, expiresAt, err := h.tokens.Issue(user.ID, user.DeviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.metrics.DeviceAuth(isNew)

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	c.JSON(status, httpresp.NewDeviceAuthResponse(token, user.DeviceID, isNew, user.ID, expiresAt))
}

func (h *Handler) listContacts(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	items, err := h.contacts.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) addContact(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		UserID int64 `json:"userId" binding:"required"`
		Mutual bool  `json:"mutual"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	contact, err := h.contacts.Add(c.Request.Context(), userID, req.UserID, req.Mutual)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (h *Handler) removeContact(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	edgeID, ok := pathID(c)
	if !ok {
		return
	}
	removed, err := h.contacts.Remove(c.Request.Context(), userID, edgeID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) searchUsers(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	items, err := h.identity.Search(c.Request.Context(), c.Query("q"), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) findByPhones(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		Phones []string `json:"phones"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	items, err := h.identity.FindByPhones(c.Request.Context(), req.Phones, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) inviteLink(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, httpresp.NewInviteLinkResponse(h.identity.InviteLink(userID)))
}

func (h *Handler) getMe(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	user, err := h.identity.FindByID(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateMe(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req domain.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	user, err := h.identity.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) getUser(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	user, err := h.identity.FindByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func (h *Handler) listInbox(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	items, err := h.mailbox.Inbox(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) inboxCount(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	n, err := h.mailbox.InboxCount(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(n))
}

func (h *Handler) getInboxItem(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	shareID, ok := pathID(c)
	if !ok {
		return
	}
	item, err := h.mailbox.InboxItem(c.Request.Context(), userID, shareID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) ackInboxItem(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	shareID, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.mailbox.Acknowledge(c.Request.Context(), userID, shareID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) send(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		RecipientID int64  `json:"recipientId"`
		Title       string `json:"title"`
		Content     string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	res, err := h.mailbox.Send(c.Request.Context(), userID, req.RecipientID, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) sendMany(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		RecipientIDs []int64 `json:"recipientIds"`
		Title        string  `json:"title"`
		Content      string  `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	results, err := h.mailbox.SendMany(c.Request.Context(), userID, req.RecipientIDs, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, results)
}

func (h *Handler) cancelSend(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	shareID, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.mailbox.Cancel(c.Request.Context(), userID, shareID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func callerID(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return 0, false
	}
	return userID, true
}

// pathID answers 404 for ids that are not positive integers.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		return 0, false
	}
	return id, true
}
