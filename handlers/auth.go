package handlers

import (
	"net/http"

	"finsite/logging"
	"finsite/middleware"
	"finsite/models"
	"finsite/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	existing, err := h.Users.UserByEmail(ctx, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, errors.Wrap(err, "hash password"))
		return
	}
	hashed := string(hashedPassword)

	user, _, err := h.Users.StoreUser(ctx, repositories.SignInProfile{
		Email:        req.Email,
		Name:         req.Name,
		AuthProvider: models.AuthProviderPassword,
		PasswordHash: &hashed,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logging.Log.WithField("email", user.Email).Info("account created")
	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.Users.UserByEmail(ctx, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	if user == nil || user.PasswordHash == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if err := h.Users.UpdateLastLogin(ctx, user.ID); err != nil {
		respondError(c, err)
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *Handler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, expires, err := middleware.IssueToken(h.JWTSecret, user.Email, h.JWTTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(status, gin.H{
		"token":     token,
		"expiresAt": expires.UnixMilli(),
		"user":      user,
	})
}
