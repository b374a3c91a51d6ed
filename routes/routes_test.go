package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"finsite/database"
	"finsite/handlers"
	"finsite/middleware"
	"finsite/models"
	"finsite/repositories"
	"finsite/storage"
	"finsite/websocket"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

const testSecret = "routes-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type recordedChange struct{ channel, action, id string }

type fakeFeed struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (f *fakeFeed) Publish(channel, action, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, recordedChange{channel, action, id})
}

func (f *fakeFeed) has(channel, action string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.changes {
		if c.channel == channel && c.action == action {
			return true
		}
	}
	return false
}

type fakeStore struct {
	mu      sync.Mutex
	deleted []string
}

func (s *fakeStore) Upload(_ context.Context, r io.ReadSeeker, fileName string, size int64) (*storage.StoredFile, error) {
	return &storage.StoredFile{
		StorageKey: "finsite/media/" + fileName,
		URL:        "https://cdn.example.com/" + fileName,
		FileName:   fileName,
		FileType:   models.FileTypeImage,
		FileSize:   size,
	}, nil
}

func (s *fakeStore) Delete(_ context.Context, storageKey, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, storageKey)
	return nil
}

type testServer struct {
	router  *gin.Engine
	handler *handlers.Handler
	feed    *fakeFeed
	files   *fakeStore
}

func newTestServer(t *testing.T, db *database.DB) *testServer {
	t.Helper()

	feed := &fakeFeed{}
	files := &fakeStore{}
	h := &handlers.Handler{Feed: feed, Files: files, JWTSecret: testSecret, JWTTTL: time.Hour}
	if db != nil {
		h.Users = repositories.NewUserRepository(db, models.RoleAdmin)
		h.Publications = repositories.NewPublicationRepository(db, h.Users.Gate())
		h.Media = repositories.NewMediaRepository(db, h.Users.Gate())
		h.Categories = repositories.NewCategoryRepository(db, h.Users.Gate())
	}

	router := SetupRouter(h, nil, Options{
		AllowedOrigins: []string{"http://localhost:3000"},
		JWTSecret:      testSecret,
		AuthLimiter:    middleware.NewIPRateLimiter(100, time.Minute),
	})
	return &testServer{router: router, handler: h, feed: feed, files: files}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestUnknownAPIRoute(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Endpoint not found")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/health", "", nil).Code)
}

func TestMutationsRequireToken(t *testing.T) {
	s := newTestServer(t, nil)
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/publications"},
		{http.MethodPatch, "/api/publications/65f1a2b3c4d5e6f7a8b9c0d1"},
		{http.MethodDelete, "/api/media/65f1a2b3c4d5e6f7a8b9c0d1"},
		{http.MethodPut, "/api/categories/order"},
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/me"},
	} {
		w := s.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/publications", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestEditorialFlow(t *testing.T) {
	s := newTestServer(t, database.CreateTempDB(t))

	// the first account gets the default sign-in role
	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"email": "Chief@Example.com", "password": "correct-horse", "name": "Chief",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, w, &session)
	assert.Equal(t, "chief@example.com", session.User.Email)
	assert.Equal(t, models.RoleAdmin, session.User.Role)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"email": "chief@example.com", "password": "another-one"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "chief@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "chief@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code)
	token := session.Token

	w = s.do(t, http.MethodPost, "/api/publications", token, gin.H{
		"title":    "Q3 Market Outlook",
		"content":  "Rates are expected to hold through the quarter",
		"category": models.CategoryMarketAnalysis,
		"status":   models.StatusPublished,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pub models.Publication
	decode(t, w, &pub)
	assert.Equal(t, "q3-market-outlook", pub.Slug)
	assert.NotNil(t, pub.PublishedAt)
	assert.True(t, s.feed.has("publications", "created"))

	// multipart upload goes through the file store
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "chart.png")
	require.NoError(t, err)
	part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	form.WriteField("alt", "Yield curve")
	form.WriteField("caption", "Two-year versus ten-year")
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/publications/"+pub.ID.Hex()+"/media", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var media models.Media
	decode(t, w, &media)
	assert.Equal(t, "Yield curve", media.Alt)
	assert.Equal(t, "Two-year versus ten-year", media.Caption)
	assert.Equal(t, pub.ID, media.PublicationID)

	w = s.do(t, http.MethodGet, "/api/publications/slug/q3-market-outlook", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail models.PublicationDetail
	decode(t, w, &detail)
	require.Len(t, detail.Media, 1)
	assert.Equal(t, media.ID, detail.Media[0].ID)
	require.NotNil(t, detail.Author)
	assert.Equal(t, "Chief", detail.Author.Name)

	w = s.do(t, http.MethodGet, "/api/publications?status=published&limit=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page repositories.Page[models.Publication]
	decode(t, w, &page)
	assert.Len(t, page.Items, 1)
	assert.True(t, page.IsDone)

	w = s.do(t, http.MethodDelete, "/api/publications/"+pub.ID.Hex(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{media.StorageKey}, s.files.deleted)
	assert.True(t, s.feed.has("media", "deleted"))

	w = s.do(t, http.MethodGet, "/api/publications/"+pub.ID.Hex(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoleGatesOverHTTP(t *testing.T) {
	s := newTestServer(t, database.CreateTempDB(t))

	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"email": "admin@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, w.Code)
	var session struct {
		Token string `json:"token"`
	}
	decode(t, w, &session)

	w = s.do(t, http.MethodPost, "/api/users", session.Token, gin.H{"email": "reader@example.com", "role": models.RoleViewer})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var viewer models.User
	decode(t, w, &viewer)

	viewerToken, _, err := middleware.IssueToken(testSecret, "reader@example.com", time.Hour)
	require.NoError(t, err)

	w = s.do(t, http.MethodPost, "/api/publications", viewerToken, gin.H{
		"title": "Nope", "category": models.CategoryResearch,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/users", viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/api/users/"+viewer.ID.Hex(), viewerToken, gin.H{"role": models.RoleAdmin})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/api/users/"+viewer.ID.Hex(), viewerToken, gin.H{"bio": "Credit analyst"})
	assert.Equal(t, http.StatusOK, w.Code)

	// a valid token for an email with no account is unauthenticated
	ghostToken, _, err := middleware.IssueToken(testSecret, "ghost@example.com", time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/api/categories", ghostToken, gin.H{"name": "Macro"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/me/profile", viewerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChangeFeedRequiresToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := websocket.NewManager()
	go hub.Run(ctx)

	router := SetupRouter(&handlers.Handler{Feed: hub}, hub, Options{JWTSecret: testSecret})
	server := httptest.NewServer(router)
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, _, err := middleware.IssueToken("another-secret", "reader@example.com", time.Hour)
	require.NoError(t, err)
	_, resp, err = gws.DefaultDialer.Dial(url+"?token="+forged, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _, err := middleware.IssueToken(testSecret, "reader@example.com", time.Hour)
	require.NoError(t, err)
	conn, _, err := gws.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]interface{}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["type"])

	require.Eventually(t, func() bool { return hub.ConnectedClients() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(websocket.ChannelUsers, websocket.ActionUpdated, "u1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "change", frame["type"])
	assert.Equal(t, "u1", frame["id"])
}

func TestGoogleCredentialSignIn(t *testing.T) {
	s := newTestServer(t, database.CreateTempDB(t))
	s.handler.Google = handlers.NewGoogleOAuthConfig("client-id", "secret", "")
	s.handler.ValidateIDToken = func(_ context.Context, credential, audience string) (*idtoken.Payload, error) {
		require.Equal(t, "client-id", audience)
		return &idtoken.Payload{Subject: "g-1", Audience: audience, Claims: map[string]interface{}{
			"email":          "Analyst@Example.com",
			"email_verified": true,
			"name":           "Analyst",
			"picture":        "https://img.example/a.png",
		}}, nil
	}

	w := s.do(t, http.MethodPost, "/api/auth/google/credential", "", gin.H{"credential": "signed.id.token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, w, &session)
	assert.Equal(t, "analyst@example.com", session.User.Email)
	assert.Equal(t, models.AuthProviderGoogle, session.User.AuthProvider)
	assert.Equal(t, "https://img.example/a.png", session.User.Avatar)

	w = s.do(t, http.MethodGet, "/api/me", session.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
