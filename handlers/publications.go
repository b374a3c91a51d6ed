package handlers

import (
	"net/http"
	"strconv"

	"finsite/models"
	"finsite/repositories"
	"finsite/websocket"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListPublications(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	filter := repositories.PublicationFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
	}
	if raw := c.Query("featured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid featured"})
			return
		}
		filter.Featured = &featured
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.Publications.List(ctx, filter, repositories.PageRequest{
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) SearchPublications(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	results, err := h.Publications.Search(ctx, c.Query("q"), c.Query("category"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) GetPublication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	pub, err := h.Publications.GetByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pub)
}

func (h *Handler) GetPublicationBySlug(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	pub, err := h.Publications.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pub)
}

func (h *Handler) CreatePublication(c *gin.Context) {
	var req repositories.CreatePublicationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	pub, err := h.Publications.Create(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelPublications, websocket.ActionCreated, pub.ID)
	c.JSON(http.StatusCreated, pub)
}

func (h *Handler) UpdatePublication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req repositories.PublicationPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	pub, err := h.Publications.Update(ctx, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelPublications, websocket.ActionUpdated, pub.ID)
	c.JSON(http.StatusOK, pub)
}

func (h *Handler) DeletePublication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	removed, err := h.Publications.Delete(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	h.releaseFiles(ctx, assetsOf(removed)...)
	h.publish(websocket.ChannelPublications, websocket.ActionDeleted, id)
	for _, m := range removed {
		h.publish(websocket.ChannelMedia, websocket.ActionDeleted, m.ID)
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "mediaDeleted": len(removed)})
}

func assetsOf(media []models.Media) []storedAsset {
	assets := make([]storedAsset, 0, len(media))
	for _, m := range media {
		assets = append(assets, storedAsset{storageKey: m.StorageKey, fileType: m.FileType})
	}
	return assets
}
