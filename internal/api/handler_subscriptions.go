package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bpark-backend/internal/model"
	"bpark-backend/internal/parking"
	"bpark-backend/internal/store"
)

type putSubscriptionRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription binds a browser push endpoint to the subscriber whose
// credentials are given, replacing any previous binding of that endpoint.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub, ok := h.authenticate(c, req.Email, req.Password)
	if !ok {
		return
	}

	subscription := model.PushSubscription{
		Endpoint:     req.Endpoint,
		SubscriberID: sub.ID,
		P256DH:       req.P256DH,
		Auth:         req.Auth,
	}
	if err := h.store.UpsertPushSubscription(c.Request.Context(), &subscription); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes an endpoint. Only the subscriber it is bound to may remove it.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()
	sub, ok := h.authenticate(c, req.Email, req.Password)
	if !ok {
		return
	}

	subscription, err := h.store.GetPushSubscription(ctx, req.Endpoint)
	if errors.Is(err, store.ErrNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if subscription.SubscriberID != sub.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription belongs to another subscriber"})
		return
	}

	if err := h.store.DeletePushSubscription(ctx, req.Endpoint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// authenticate checks credentials and writes the error response itself when they fail.
func (h *Handler) authenticate(c *gin.Context, email, password string) (*model.Subscriber, bool) {
	sub, err := h.engine.Authenticate(c.Request.Context(), strings.ToLower(strings.TrimSpace(email)), password)
	if errors.Is(err, parking.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return sub, true
}

// rawQueryParam reads a query value without URL decoding, since push
// endpoints are stored exactly as the browser reported them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription reports whether an endpoint is registered.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	subscription, err := h.store.GetPushSubscription(c.Request.Context(), raw)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscribed": true,
		"created_at": subscription.CreatedAt,
	})
}
