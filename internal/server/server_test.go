package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"launchpad/internal/config"
	"launchpad/internal/db"
	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, users map[string]domain.Role) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, db.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, db.DriverSQLite, config.Default(), nil)
	for id, role := range users {
		if _, err := e.CreateUser(context.Background(), engine.UserCreateOptions{ID: id, Username: id, Role: string(role)}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
		DevLogin: true,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(userID string) map[string]string {
	return map[string]string{"X-Actor-Id": userID}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return v
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected %d, got %d: %s", status, res.StatusCode, string(data))
	}
	env := decode[struct {
		Error apiErrorBody `json:"error"`
	}](t, data)
	if env.Error.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, env.Error.Code, env.Error.Message)
	}
}

func TestContractSigningOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, map[string]domain.Role{
		"alice": domain.RoleStartuper,
		"bob":   domain.RoleAngel,
		"carol": domain.RoleStudent,
	})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", map[string]any{
		"title":    "Seed round",
		"template": "safe",
		"content":  "terms",
	}, as("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create contract: %d %s", res.StatusCode, string(data))
	}
	created := decode[domain.Contract](t, data)
	if created.Status != domain.ContractDraft {
		t.Fatalf("expected DRAFT, got %s", created.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/sign", nil, as("bob"))
	expectError(t, res, data, http.StatusConflict, "invalid_state")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/send", map[string]any{
		"party_ids": []string{"bob", "carol"},
	}, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send: %d %s", res.StatusCode, string(data))
	}
	sent := decode[ContractDetailResponse](t, data)
	if sent.Status != domain.ContractSent || len(sent.Signatures) != 2 {
		t.Fatalf("unexpected send result: %+v", sent)
	}

	for _, party := range []string{"bob", "carol"} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/sign", nil, as(party))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("sign as %s: %d %s", party, res.StatusCode, string(data))
		}
	}
	signed := decode[ContractDetailResponse](t, data)
	if signed.Status != domain.ContractSigned {
		t.Fatalf("expected SIGNED, got %s", signed.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/contracts/"+created.ID+"/signatures", nil, as("carol"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("signatures: %d %s", res.StatusCode, string(data))
	}
	sigs := decode[listResponse[domain.Signature]](t, data)
	for _, s := range sigs.Items {
		if s.Status != domain.SignatureSigned || s.SignedAt == nil {
			t.Fatalf("unexpected signature %+v", s)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications: %d %s", res.StatusCode, string(data))
	}
	inbox := decode[listResponse[domain.Notification]](t, data)
	if len(inbox.Items) != 1 || inbox.Items[0].Message != "Contract 'Seed round' is fully signed." {
		t.Fatalf("unexpected inbox: %+v", inbox.Items)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, map[string]domain.Role{
		"alice": domain.RoleStartuper,
		"sam":   domain.RoleStudent,
	})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/contracts", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, as("ghost"))
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", map[string]any{
		"title": "", "template": "safe", "content": "terms",
	}, as("alice"))
	expectError(t, res, data, http.StatusBadRequest, "invalid_argument")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/contracts/nope", nil, as("alice"))
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, as("sam"))
	expectError(t, res, data, http.StatusPreconditionFailed, "not_linked")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/workspace", map[string]any{"name": "Nope"}, as("sam"))
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestTaskCompletionAwardsScore(t *testing.T) {
	srv, cleanup := newTestServer(t, map[string]domain.Role{
		"founder": domain.RoleStartuper,
		"mia":     domain.RoleStudent,
	})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/workspace", map[string]any{"name": "Acme"}, as("founder"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workspace: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/workspace/join-code", nil, as("founder"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join code: %d %s", res.StatusCode, string(data))
	}
	code := decode[JoinCodeResponse](t, data).JoinCode
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/workspace/join", map[string]any{"join_code": code}, as("mia"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":             "Pitch deck",
		"priority":          "HIGH",
		"assignee_username": "mia",
	}, as("founder"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	task := decode[domain.Task](t, data)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID, map[string]any{"title": "Mine now"}, as("mia"))
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID, map[string]any{"status": "DONE"}, as("mia"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete task: %d %s", res.StatusCode, string(data))
	}
	if done := decode[domain.Task](t, data); done.Status != domain.TaskDone {
		t.Fatalf("expected DONE, got %s", done.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/workspace/score", nil, as("mia"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("score: %d %s", res.StatusCode, string(data))
	}
	if score := decode[ScoreResponse](t, data); score.Total != 3 {
		t.Fatalf("expected score 3, got %d", score.Total)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=score.awarded", nil, as("mia"))
	expectError(t, res, data, http.StatusForbidden, "forbidden")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=score.awarded", nil, as("founder"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	if page := decode[paginatedEvents](t, data); len(page.Items) != 1 {
		t.Fatalf("expected one score event, got %d", len(page.Items))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+task.ID, nil, as("founder"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d %s", res.StatusCode, string(data))
	}
}

func TestDevLoginAndAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, map[string]domain.Role{"alice": domain.RoleStartuper})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"user_id": "alice"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	token := decode[DevLoginResponse](t, data).Token

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with jwt: %d %s", res.StatusCode, string(data))
	}
	me := decode[MeResponse](t, data)
	if me.UserID != "alice" || me.AuthSource != "jwt" || me.Tier != "NONE" {
		t.Fatalf("unexpected me: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	_, plain, err := srv.Engine.CreateAPIKey(context.Background(), "alice", "ci")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": plain})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key: %d %s", res.StatusCode, string(data))
	}
	if me := decode[MeResponse](t, data); me.AuthSource != "api_key" {
		t.Fatalf("expected api_key source, got %s", me.AuthSource)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"user_id": "ghost"}, nil)
	expectError(t, res, data, http.StatusNotFound, "not_found")
}

func TestWebhookDelivery(t *testing.T) {
	srv, cleanup := newTestServer(t, map[string]domain.Role{"alice": domain.RoleStartuper})
	defer cleanup()

	var mu sync.Mutex
	var got []webhookEvent
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	d := NewWebhookDispatcher(srv.Engine.Repo, []config.WebhookConfig{{URL: hook.URL, Events: []string{"workspace.created"}}}, nil)
	ctx := context.Background()
	// The first pass pins the cursor to the current head.
	d.DispatchAll(ctx)

	alice, err := srv.Engine.ResolveActor(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := srv.Engine.CreateContract(ctx, alice, engine.ContractCreateOptions{Title: "Ignored", Template: "t", Content: "c"}); err != nil {
		t.Fatalf("create contract: %v", err)
	}
	ws, err := srv.Engine.CreateWorkspace(ctx, alice, "Acme")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	if got[0].Type != "workspace.created" || got[0].WorkspaceID != ws.ID {
		t.Fatalf("unexpected delivery %+v", got[0])
	}
}
