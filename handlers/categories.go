package handlers

import (
	"net/http"

	"finsite/repositories"
	"finsite/websocket"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListCategories(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	categories, err := h.Categories.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) GetCategoryBySlug(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.Categories.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req repositories.CreateCategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.Categories.Create(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelCategories, websocket.ActionCreated, category.ID)
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req repositories.CategoryPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.Categories.Update(ctx, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelCategories, websocket.ActionUpdated, category.ID)
	c.JSON(http.StatusOK, category)
}

// DeleteCategory hard-deletes unused categories; categories that still have
// publications are deactivated instead.
func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	soft, err := h.Categories.Delete(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	action := websocket.ActionDeleted
	if soft {
		action = websocket.ActionUpdated
	}
	h.publish(websocket.ChannelCategories, action, id)
	c.JSON(http.StatusOK, gin.H{"deleted": true, "deactivated": soft})
}

type categoryOrderRequest struct {
	Orders []repositories.CategoryOrder `json:"orders" binding:"required,dive"`
}

func (h *Handler) ReorderCategories(c *gin.Context) {
	var req categoryOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Categories.Reorder(ctx, req.Orders); err != nil {
		respondError(c, err)
		return
	}

	if h.Feed != nil {
		h.Feed.Publish(websocket.ChannelCategories, websocket.ActionReordered, "")
	}
	c.JSON(http.StatusOK, gin.H{"reordered": len(req.Orders)})
}
