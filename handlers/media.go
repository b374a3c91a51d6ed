package handlers

import (
	"net/http"
	"strings"

	"finsite/logging"
	"finsite/models"
	"finsite/repositories"
	"finsite/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxUploadSize = 50 << 20

func (h *Handler) ListPublicationMedia(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	media, err := h.Media.ListByPublication(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media})
}

func (h *Handler) ListMediaByType(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	media, err := h.Media.ListByType(ctx, c.Query("type"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media})
}

// LinkMedia attaches a file to a publication. A JSON body describes a file
// already in the store; a multipart "file" part is uploaded first.
func (h *Handler) LinkMedia(c *gin.Context) {
	pubID, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var meta models.FileMetadata
	uploaded := false

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if h.Files == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
			return
		}
		// check the role before paying for the upload
		if _, err := h.Users.Gate().Editor(ctx); err != nil {
			respondError(c, err)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}
		defer file.Close()

		stored, err := h.Files.Upload(ctx, file, header.Filename, header.Size)
		if err != nil {
			logging.Log.WithError(err).WithField("fileName", header.Filename).Error("upload media")
			c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
			return
		}
		meta = stored.Metadata()
		meta.Alt = c.PostForm("alt")
		meta.Caption = c.PostForm("caption")
		uploaded = true
	} else if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	media, err := h.Media.LinkToPublication(ctx, pubID, meta)
	if err != nil {
		if uploaded {
			h.releaseFiles(ctx, storedAsset{storageKey: meta.StorageKey, fileType: meta.FileType})
		}
		respondError(c, err)
		return
	}

	logging.Log.WithFields(logrus.Fields{
		"mediaId":       media.ID.Hex(),
		"publicationId": pubID.Hex(),
		"fileType":      media.FileType,
	}).Info("media linked")

	h.publish(websocket.ChannelMedia, websocket.ActionCreated, media.ID)
	h.publish(websocket.ChannelPublications, websocket.ActionUpdated, pubID)
	c.JSON(http.StatusCreated, media)
}

func (h *Handler) UpdateMedia(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req repositories.MediaPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	media, err := h.Media.Update(ctx, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelMedia, websocket.ActionUpdated, media.ID)
	c.JSON(http.StatusOK, media)
}

func (h *Handler) DeleteMedia(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	media, err := h.Media.Delete(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	h.releaseFiles(ctx, storedAsset{storageKey: media.StorageKey, fileType: media.FileType})
	h.publish(websocket.ChannelMedia, websocket.ActionDeleted, media.ID)
	h.publish(websocket.ChannelPublications, websocket.ActionUpdated, media.PublicationID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type mediaOrderRequest struct {
	Orders []repositories.MediaOrder `json:"orders" binding:"required,dive"`
}

func (h *Handler) ReorderMedia(c *gin.Context) {
	pubID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req mediaOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Media.Reorder(ctx, pubID, req.Orders); err != nil {
		respondError(c, err)
		return
	}

	h.publish(websocket.ChannelMedia, websocket.ActionReordered, pubID)
	c.JSON(http.StatusOK, gin.H{"reordered": len(req.Orders)})
}

func (h *Handler) ReconcileMedia(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := h.Media.ReconcileOrphans(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	h.releaseFiles(ctx, assetsOf(report.Removed)...)
	if h.Feed != nil && (report.OrphanedMedia > 0 || report.DanglingMediaID > 0) {
		h.Feed.Publish(websocket.ChannelMedia, websocket.ActionUpdated, "")
	}
	c.JSON(http.StatusOK, report)
}
