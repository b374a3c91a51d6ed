package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"finsite/logging"
	"finsite/models"
	"finsite/repositories"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

const oauthStateCookie = "oauth_state"

var googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// NewGoogleOAuthConfig returns nil when the client credentials are unset.
func NewGoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// IDTokenValidator verifies a Google Identity Services credential for
// audience. idtoken.Validate is the production implementation.
type IDTokenValidator func(ctx context.Context, credential, audience string) (*idtoken.Payload, error)

type GoogleCredentialRequest struct {
	Credential string `json:"credential" binding:"required"`
}

type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GetGoogleAuthURL starts the code flow and pins its state in a cookie.
func (h *Handler) GetGoogleAuthURL(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}

	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", h.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"url": h.Google.AuthCodeURL(state, oauth2.AccessTypeOnline)})
}

func (h *Handler) GoogleOAuthCallback(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}

	expected, err := c.Cookie(oauthStateCookie)
	if err != nil || expected == "" || expected != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state"})
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", h.SecureCookies, true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code missing"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	token, err := h.Google.Exchange(ctx, code)
	if err != nil {
		logging.Log.WithError(err).Warn("google token exchange failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to exchange authorization code"})
		return
	}

	info, err := fetchGoogleUser(h.Google.Client(ctx, token))
	if err != nil {
		logging.Log.WithError(err).Error("google user info")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get user information"})
		return
	}
	h.signInGoogleUser(c, *info)
}

func fetchGoogleUser(client *http.Client) (*GoogleUserInfo, error) {
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, errors.Wrap(err, "request user info")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("user info returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read user info")
	}

	var info GoogleUserInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "parse user info")
	}
	return &info, nil
}

// GoogleAuthWithCredential signs in with a Google Identity Services ID
// token. The token signature, expiry and audience are verified before any
// claim is trusted.
func (h *Handler) GoogleAuthWithCredential(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}

	var req GoogleCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	validate := h.ValidateIDToken
	if validate == nil {
		validate = idtoken.Validate
	}
	payload, err := validate(ctx, req.Credential, h.Google.ClientID)
	if err != nil {
		logging.Log.WithError(err).Warn("google credential rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Google credential"})
		return
	}

	info := GoogleUserInfo{
		ID:            payload.Subject,
		Email:         stringClaim(payload.Claims, "email"),
		VerifiedEmail: boolClaim(payload.Claims, "email_verified"),
		Name:          stringClaim(payload.Claims, "name"),
		Picture:       stringClaim(payload.Claims, "picture"),
	}
	h.signInGoogleUser(c, info)
}

func stringClaim(claims map[string]interface{}, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func boolClaim(claims map[string]interface{}, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func (h *Handler) signInGoogleUser(c *gin.Context, info GoogleUserInfo) {
	if info.Email == "" || !info.VerifiedEmail {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Google account has no verified email"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, created, err := h.Users.StoreUser(ctx, repositories.SignInProfile{
		Email:        info.Email,
		Name:         info.Name,
		Avatar:       info.Picture,
		AuthProvider: models.AuthProviderGoogle,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logging.Log.WithField("email", user.Email).WithField("created", created).Info("google sign-in")
	h.respondWithToken(c, http.StatusOK, user)
}
