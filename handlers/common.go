package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"finsite/auth"
	"finsite/logging"
	"finsite/repositories"
	"finsite/storage"
	"finsite/websocket"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/oauth2"
)

const requestTimeout = 10 * time.Second

// Handler carries everything the HTTP layer needs. Files and Google are
// optional; the endpoints that need them answer 503 when they are nil.
type Handler struct {
	Users        *repositories.UserRepository
	Publications *repositories.PublicationRepository
	Media        *repositories.MediaRepository
	Categories   *repositories.CategoryRepository

	Files  storage.FileStore
	Feed   websocket.Notifier
	Google *oauth2.Config
	// ValidateIDToken defaults to idtoken.Validate.
	ValidateIDToken IDTokenValidator

	JWTSecret string
	JWTTTL    time.Duration
	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool
}

// requestContext carries the caller identity set by the JWT middleware and
// bounds the repository call.
func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// statusFor maps repository and gate errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repositories.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrConflict), errors.Is(err, repositories.ErrIntegrity):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return primitive.NilObjectID, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return n, true
}

func (h *Handler) publish(channel, action string, id primitive.ObjectID) {
	if h.Feed == nil {
		return
	}
	h.Feed.Publish(channel, action, id.Hex())
}

// releaseFiles removes stored assets whose records are gone. Failures are
// logged; the records are already deleted.
func (h *Handler) releaseFiles(ctx context.Context, keys ...storedAsset) {
	if h.Files == nil {
		return
	}
	for _, k := range keys {
		if k.storageKey == "" {
			continue
		}
		if err := h.Files.Delete(ctx, k.storageKey, k.fileType); err != nil {
			logging.Log.WithError(err).WithField("storageKey", k.storageKey).Warn("release stored file")
		}
	}
}

type storedAsset struct {
	storageKey string
	fileType   string
}
