package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finsite/auth"
	"finsite/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Wrap(repositories.ErrInvalid, "title is required"), http.StatusBadRequest},
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{errors.Wrap(auth.ErrForbidden, "admin role required"), http.StatusForbidden},
		{errors.Wrap(repositories.ErrNotFound, "publication"), http.StatusNotFound},
		{errors.Wrap(repositories.ErrConflict, "slug already exists"), http.StatusConflict},
		{errors.Wrap(repositories.ErrIntegrity, "cannot delete user"), http.StatusConflict},
		{errors.New("socket closed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, errors.New("connection refused to 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.3")
}

func TestRespondErrorKeepsMessage(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, errors.Wrap(repositories.ErrNotFound, "publication"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"publication: not found"}`, w.Body.String())
}

func TestParseIDRejectsGarbage(t *testing.T) {
	router := gin.New()
	router.GET("/things/:id", func(c *gin.Context) {
		if _, ok := parseID(c, "id"); ok {
			c.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/65f1a2b3c4d5e6f7a8b9c0d1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGoogleNotConfigured(t *testing.T) {
	h := &Handler{}
	router := gin.New()
	router.GET("/url", h.GetGoogleAuthURL)
	router.GET("/callback", h.GoogleOAuthCallback)

	for _, path := range []string{"/url", "/callback?code=x&state=y"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
	assert.Nil(t, NewGoogleOAuthConfig("", "secret", ""))
}

func TestGoogleAuthURLSetsStateCookie(t *testing.T) {
	h := &Handler{Google: NewGoogleOAuthConfig("client", "secret", "http://localhost/callback")}
	router := gin.New()
	router.GET("/url", h.GetGoogleAuthURL)
	router.GET("/callback", h.GoogleOAuthCallback)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/url", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, oauthStateCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Contains(t, w.Body.String(), "state="+cookies[0].Value)

	// a callback carrying a different state is refused before any exchange
	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=forged", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFetchGoogleUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"1","email":"ana@example.com","verified_email":true,"name":"Ana","picture":"https://img/a.png"}`))
	}))
	defer server.Close()

	old := googleUserInfoURL
	googleUserInfoURL = server.URL
	defer func() { googleUserInfoURL = old }()

	client := oauth2.NewClient(t.Context(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access"}))
	info, err := fetchGoogleUser(client)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", info.Email)
	assert.True(t, info.VerifiedEmail)
	assert.Equal(t, "https://img/a.png", info.Picture)
}

func TestFetchGoogleUserBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	old := googleUserInfoURL
	googleUserInfoURL = server.URL
	defer func() { googleUserInfoURL = old }()

	_, err := fetchGoogleUser(server.Client())
	assert.Error(t, err)
}

func postCredential(h *Handler, body string) *httptest.ResponseRecorder {
	router := gin.New()
	router.POST("/credential", h.GoogleAuthWithCredential)

	req := httptest.NewRequest(http.MethodPost, "/credential", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGoogleCredentialRejected(t *testing.T) {
	google := NewGoogleOAuthConfig("client-id", "secret", "")

	var gotAudience string
	h := &Handler{Google: google, ValidateIDToken: func(_ context.Context, credential, audience string) (*idtoken.Payload, error) {
		gotAudience = audience
		return nil, errors.New("idtoken: invalid signature")
	}}

	w := postCredential(h, `{"credential":"forged.jwt.value"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "client-id", gotAudience)

	w = postCredential(h, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postCredential(&Handler{}, `{"credential":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGoogleCredentialNeedsVerifiedEmail(t *testing.T) {
	h := &Handler{
		Google: NewGoogleOAuthConfig("client-id", "secret", ""),
		ValidateIDToken: func(context.Context, string, string) (*idtoken.Payload, error) {
			return &idtoken.Payload{Subject: "1", Claims: map[string]interface{}{
				"email":          "ana@example.com",
				"email_verified": false,
			}}, nil
		},
	}

	w := postCredential(h, `{"credential":"token"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimHelpers(t *testing.T) {
	claims := map[string]interface{}{"email": "a@b.c", "email_verified": "true", "n": 3.0}
	assert.Equal(t, "a@b.c", stringClaim(claims, "email"))
	assert.Equal(t, "", stringClaim(claims, "n"))
	assert.True(t, boolClaim(claims, "email_verified"))
	assert.False(t, boolClaim(claims, "missing"))
}
