package handlers

import (
	"net/http"

	"finsite/repositories"
	"finsite/websocket"

	"github.com/gin-gonic/gin"
)

// ListUsers is admin only; the repository lookups themselves are ungated.
func (h *Handler) ListUsers(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.Users.Gate().Admin(ctx); err != nil {
		respondError(c, err)
		return
	}

	users, err := h.Users.ListAll(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.Users.Gate().Viewer(ctx); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.Users.GetByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req repositories.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.Users.Create(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelUsers, websocket.ActionCreated, user.ID)
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req repositories.UserPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.Users.Update(ctx, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelUsers, websocket.ActionUpdated, user.ID)
	c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelUsers, websocket.ActionDeleted, id)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetMe returns the caller's own record.
func (h *Handler) GetMe(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.Users.Current(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// EnsureMyProfile backfills the caller's missing profile fields.
func (h *Handler) EnsureMyProfile(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	user, changed, err := h.Users.EnsureProfile(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if changed {
		h.publish(websocket.ChannelUsers, websocket.ActionUpdated, user.ID)
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "updated": changed})
}
