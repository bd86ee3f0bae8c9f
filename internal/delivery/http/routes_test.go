package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"ccfolio/infrastructure/ws"
	"ccfolio/internal/entity"
	"ccfolio/internal/network"
	"ccfolio/internal/repository"
	"ccfolio/internal/usecase"
	"ccfolio/pkg/jwt"

	"go.uber.org/zap/zaptest"
)

var testUser = entity.User{Id: "u-1", Username: "ada", Email: "ada@example.com", Name: "Ada"}

type fakeAuth struct {
	usecase.AuthUsecase
	*jwt.JWTManager
	loggedOut []string
}

func (f *fakeAuth) ValidateAccessToken(token string) (*entity.TokenClaims, error) {
	return f.JWTManager.ValidateAccessToken(token)
}

func (f *fakeAuth) Login(_ context.Context, req entity.LoginRequest, _ entity.SessionInfo) (entity.AuthResponse, error) {
	if req.Password != "secret1" {
		return entity.AuthResponse{}, usecase.ErrInvalidCredentials
	}
	return entity.AuthResponse{AccessToken: "access", RefreshToken: "refresh", User: testUser}, nil
}

func (f *fakeAuth) Register(_ context.Context, req entity.RegisterRequest, _ entity.SessionInfo) (entity.AuthResponse, error) {
	if req.Email == "taken@example.com" {
		return entity.AuthResponse{}, usecase.ErrEmailAlreadyTaken
	}
	return entity.AuthResponse{AccessToken: "access", RefreshToken: "refresh", User: testUser}, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return nil
}

func (f *fakeAuth) LogoutAllDevices(context.Context, string) error { return nil }

type fakeUsers struct{}

func (fakeUsers) Get(_ context.Context, id string) (entity.User, error) {
	if id != testUser.Id {
		return entity.User{}, repository.ErrUserNotFound
	}
	return testUser, nil
}

func (fakeUsers) FindByUsername(_ context.Context, username string) (entity.User, error) {
	if username == "" {
		return entity.User{}, usecase.ErrMissingFields
	}
	if username != testUser.Username {
		return entity.User{}, repository.ErrUserNotFound
	}
	u := testUser
	u.Email = ""
	return u, nil
}

func (fakeUsers) UpdateName(_ context.Context, _ string, name string) (entity.User, error) {
	if strings.TrimSpace(name) == "" {
		return entity.User{}, usecase.ErrMissingFields
	}
	u := testUser
	u.Name = name
	return u, nil
}

type fakeAPIKeys struct {
	mu   sync.Mutex
	keys []entity.APIKey
}

func (f *fakeAPIKeys) Create(_ context.Context, owner string, req entity.CreateAPIKeyRequest) (entity.CreateAPIKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := entity.APIKey{Id: "k-1", OwnerId: owner, Description: req.Description, Status: entity.APIKeyActive}
	f.keys = append(f.keys, k)
	return entity.CreateAPIKeyResponse{Key: "plaintext", APIKey: k}, nil
}

func (f *fakeAPIKeys) List(context.Context, string) ([]entity.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys, nil
}

func (f *fakeAPIKeys) Revoke(_ context.Context, _ string, id string) error {
	if id != "k-1" {
		return usecase.ErrAPIKeyNotFound
	}
	return nil
}

func (f *fakeAPIKeys) Verify(context.Context, string) (bool, error) { return true, nil }

type fixture struct {
	router *network.Router
	hub    *ws.BroadcastHub
	auth   *fakeAuth
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	manager := jwt.NewJWTManager("test-secret", time.Minute, time.Hour)
	token, err := manager.GenerateAccessToken(testUser)
	if err != nil {
		t.Fatal(err)
	}

	auth := &fakeAuth{JWTManager: manager}
	hub := ws.NewHub(log, nil)
	router := network.NewRouter(log)
	MapHttpRoutes(router,
		NewHttpHandler(fakeUsers{}, hub, nil, log),
		NewAuthHandler(auth, time.Hour, log),
		NewAPIKeyHandler(&fakeAPIKeys{}, log),
		NewAuthMiddleware(auth),
	)
	return &fixture{router: router, hub: hub, auth: auth, token: token}
}

func (f *fixture) do(t *testing.T, method, target, body string, header http.Header) (*network.Response, Response) {
	t.Helper()
	if header == nil {
		header = make(http.Header)
	}
	path, rawQuery, _ := strings.Cut(target, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		t.Fatalf("parse query %q: %v", rawQuery, err)
	}
	req := &network.Request{Method: method, Path: path, Query: query, Header: header, Body: []byte(body), RemoteAddr: "127.0.0.1:1"}
	res := network.NewResponse()
	if !f.router.Dispatch(req, res) {
		t.Fatalf("%s %s not routed", method, target)
	}

	var envelope Response
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(res.Body, &envelope); err != nil {
			t.Fatalf("decode %s: %v", res.Body, err)
		}
	}
	return res, envelope
}

func (f *fixture) bearer() http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+f.token)
	return h
}

func TestPingAndHealth(t *testing.T) {
	f := newFixture(t)

	res, _ := f.do(t, http.MethodGet, "/ping", "", nil)
	if res.Status != http.StatusOK || string(res.Body) != "pong" {
		t.Errorf("/ping = %d %q", res.Status, res.Body)
	}

	res, body := f.do(t, http.MethodGet, "/health", "", nil)
	if res.Status != http.StatusOK || body.Message != "ok" {
		t.Errorf("/health = %d %+v", res.Status, body)
	}
}

func TestHealthReportsFailingDependency(t *testing.T) {
	log := zaptest.NewLogger(t)
	h := NewHttpHandler(fakeUsers{}, ws.NewHub(log, nil), func(context.Context) error {
		return errors.New("mongo down")
	}, log)

	res := network.NewResponse()
	if err := h.Health(&network.Request{}, res); err != nil {
		t.Fatal(err)
	}
	if res.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", res.Status)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	f := newFixture(t)

	cases := map[string]string{
		"missing":    "",
		"wrong type": "Basic abc",
		"bad token":  "Bearer not-a-jwt",
	}
	for name, value := range cases {
		h := make(http.Header)
		if value != "" {
			h.Set("Authorization", value)
		}
		res, _ := f.do(t, http.MethodGet, "/users/me", "", h)
		if res.Status != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, res.Status)
		}
	}

	res, body := f.do(t, http.MethodGet, "/users/me", "", f.bearer())
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Status)
	}
	if user, _ := body.Data.(map[string]any); user["username"] != "ada" {
		t.Errorf("data = %v", body.Data)
	}
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	f := newFixture(t)

	res, _ := f.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"secret1"}`, nil)
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d", res.Status)
	}
	if !strings.Contains(res.Header.Get("Set-Cookie"), "refresh_token=refresh") {
		t.Errorf("Set-Cookie = %q", res.Header.Get("Set-Cookie"))
	}

	res, _ = f.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"wrong"}`, nil)
	if res.Status != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", res.Status)
	}

	res, _ = f.do(t, http.MethodPost, "/auth/login", `{`, nil)
	if res.Status != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", res.Status)
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	f := newFixture(t)

	res, _ := f.do(t, http.MethodPost, "/auth/register", `{"email":"a@b.c","username":"ab","password":"secret1","name":"A"}`, nil)
	if res.Status != http.StatusBadRequest {
		t.Errorf("short username status = %d", res.Status)
	}

	res, _ = f.do(t, http.MethodPost, "/auth/register", `{"email":"taken@example.com","username":"ada","password":"secret1","name":"A"}`, nil)
	if res.Status != http.StatusConflict {
		t.Errorf("taken email status = %d", res.Status)
	}

	res, _ = f.do(t, http.MethodPost, "/auth/register", `{"email":"new@example.com","username":"ada","password":"secret1","name":"A"}`, nil)
	if res.Status != http.StatusCreated {
		t.Errorf("register status = %d", res.Status)
	}
}

func TestLogoutReadsCookie(t *testing.T) {
	f := newFixture(t)

	h := make(http.Header)
	h.Set("Cookie", "refresh_token=from-cookie")
	res, _ := f.do(t, http.MethodPost, "/auth/logout", "", h)
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d", res.Status)
	}
	if len(f.auth.loggedOut) != 1 || f.auth.loggedOut[0] != "from-cookie" {
		t.Errorf("logged out %v", f.auth.loggedOut)
	}
}

func TestAPIKeyRoutes(t *testing.T) {
	f := newFixture(t)

	res, body := f.do(t, http.MethodPost, "/api-keys", `{"description":"ci"}`, f.bearer())
	if res.Status != http.StatusCreated {
		t.Fatalf("create status = %d", res.Status)
	}
	if data, _ := body.Data.(map[string]any); data["key"] != "plaintext" {
		t.Errorf("create data = %v", body.Data)
	}

	res, body = f.do(t, http.MethodGet, "/api-keys", "", f.bearer())
	if list, _ := body.Data.([]any); res.Status != http.StatusOK || len(list) != 1 {
		t.Errorf("list = %d %v", res.Status, body.Data)
	}

	res, _ = f.do(t, http.MethodPost, "/api-keys/revoke", `{"id":"missing"}`, f.bearer())
	if res.Status != http.StatusNotFound {
		t.Errorf("revoke unknown status = %d", res.Status)
	}
	res, _ = f.do(t, http.MethodPost, "/api-keys/revoke", `{"id":"k-1"}`, f.bearer())
	if res.Status != http.StatusOK {
		t.Errorf("revoke status = %d", res.Status)
	}
}

type capturePeer struct {
	mu  sync.Mutex
	got [][]byte
}

func (p *capturePeer) ID() string { return "peer" }

func (p *capturePeer) Send(m []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, m)
	return true
}

func TestBroadcastRoute(t *testing.T) {
	f := newFixture(t)
	peer := &capturePeer{}
	f.hub.Join(peer)

	res, body := f.do(t, http.MethodPost, "/broadcast", `{"message":"hello"}`, f.bearer())
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d", res.Status)
	}
	if data, _ := body.Data.(map[string]any); data["delivered"] != float64(1) {
		t.Errorf("data = %v", body.Data)
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()
	if len(peer.got) != 1 || !strings.Contains(string(peer.got[0]), `"from":"ada"`) {
		t.Errorf("peer received %q", peer.got)
	}

	res, _ = f.do(t, http.MethodPost, "/broadcast", `{"message":"  "}`, f.bearer())
	if res.Status != http.StatusBadRequest {
		t.Errorf("empty message status = %d", res.Status)
	}
}

func TestFindUserByUsername(t *testing.T) {
	f := newFixture(t)

	res, body := f.do(t, http.MethodGet, "/users?username=ada", "", f.bearer())
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Status)
	}
	data, _ := body.Data.(map[string]any)
	if data["username"] != "ada" || data["email"] != "" {
		t.Errorf("data = %v", body.Data)
	}

	cases := map[string]int{
		"/users":                http.StatusBadRequest,
		"/users?username=":      http.StatusBadRequest,
		"/users?username=grace": http.StatusNotFound,
	}
	for target, want := range cases {
		if res, _ := f.do(t, http.MethodGet, target, "", f.bearer()); res.Status != want {
			t.Errorf("GET %s = %d, want %d", target, res.Status, want)
		}
	}

	if res, _ := f.do(t, http.MethodGet, "/users?username=ada", "", nil); res.Status != http.StatusUnauthorized {
		t.Errorf("unauthenticated lookup = %d, want 401", res.Status)
	}
}
