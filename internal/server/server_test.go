package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/me/hibernate/internal/cloud"
	"github.com/me/hibernate/internal/config"
	"github.com/me/hibernate/internal/store"
	"github.com/me/hibernate/pkg/model"
)

type stubBroker struct {
	err error
}

func (f *stubBroker) Assume(ctx context.Context, roleARN, region string) (cloud.Credentials, error) {
	if f.err != nil {
		return cloud.Credentials{}, f.err
	}
	return cloud.Credentials{AccessKeyID: "AKIAFAKE", Expiry: time.Now().Add(time.Hour)}, nil
}

type stubInstances struct {
	instances []model.Instance
	actions   []string
	err       error
}

func (f *stubInstances) SetInstanceState(ctx context.Context, creds cloud.Credentials, instanceID string, action model.Action, region string) error {
	if f.err != nil {
		return f.err
	}
	f.actions = append(f.actions, string(action)+":"+instanceID)
	return nil
}

func (f *stubInstances) ListInstances(ctx context.Context, creds cloud.Credentials, region string) ([]model.Instance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.instances, nil
}

func newTestServer(t *testing.T) (*Server, *stubBroker, *stubInstances) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	broker := &stubBroker{}
	instances := &stubInstances{}
	srv := New(config.DefaultServerConfig(), st, nil, broker, instances, logger)
	return srv, broker, instances
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *model.APIError `json:"error"`
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse envelope (status %d): %v\nbody: %s", rec.Code, err, rec.Body.String())
	}
	return rec.Code, env
}

// registerAndLogin creates a user and returns a live session token.
func registerAndLogin(t *testing.T, srv *Server, email string) string {
	t.Helper()

	code, _ := doJSON(t, srv, "POST", "/api/register", "",
		map[string]string{"email": email, "password": "hunter22"})
	if code != http.StatusCreated {
		t.Fatalf("register = %d", code)
	}

	code, env := doJSON(t, srv, "POST", "/api/login", "",
		map[string]string{"email": email, "password": "hunter22"})
	if code != http.StatusOK {
		t.Fatalf("login = %d", code)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("login data = %s (%v)", env.Data, err)
	}
	return data.Token
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, env := doJSON(t, srv, "GET", "/api/health", "", nil)
	if code != http.StatusOK || env.Status != "ok" {
		t.Fatalf("health = %d %s", code, env.Status)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	srv, _, _ := newTestServer(t)
	registerAndLogin(t, srv, "alice@example.com")

	code, env := doJSON(t, srv, "POST", "/api/register", "",
		map[string]string{"email": "alice@example.com", "password": "other"})
	if code != http.StatusConflict {
		t.Fatalf("duplicate register = %d", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrConflict {
		t.Errorf("error = %+v, want CONFLICT", env.Error)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, _ := doJSON(t, srv, "POST", "/api/register", "",
		map[string]string{"email": "", "password": ""})
	if code != http.StatusBadRequest {
		t.Fatalf("register without fields = %d", code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	srv, _, _ := newTestServer(t)
	registerAndLogin(t, srv, "alice@example.com")

	code, env := doJSON(t, srv, "POST", "/api/login", "",
		map[string]string{"email": "alice@example.com", "password": "wrong"})
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong password login = %d", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrUnauthorized {
		t.Errorf("error = %+v, want UNAUTHORIZED", env.Error)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, _ := doJSON(t, srv, "POST", "/api/login", "",
		map[string]string{"email": "ghost@example.com", "password": "whatever"})
	if code != http.StatusUnauthorized {
		t.Fatalf("unknown user login = %d", code)
	}
}

func TestAuth_Required(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/api/role", "/api/instances", "/api/schedules/"} {
		code, _ := doJSON(t, srv, "GET", path, "", nil)
		if code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, code)
		}
	}

	code, _ := doJSON(t, srv, "GET", "/api/role", "bogus-token", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("GET /api/role with bogus token = %d, want 401", code)
	}
}

func TestLogout_InvalidatesSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")

	if code, _ := doJSON(t, srv, "POST", "/api/logout", token, nil); code != http.StatusOK {
		t.Fatalf("logout = %d", code)
	}
	if code, _ := doJSON(t, srv, "GET", "/api/role", token, nil); code != http.StatusUnauthorized {
		t.Errorf("request after logout = %d, want 401", code)
	}
}

func TestAuth_ExpiredSessionRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)
	registerAndLogin(t, srv, "alice@example.com")

	ctx := context.Background()
	user, err := srv.store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil || user == nil {
		t.Fatalf("GetUserByEmail = %+v, %v", user, err)
	}

	now := time.Now().UTC()
	stale := &model.Session{
		ID:        "ses_stale",
		UserID:    user.ID,
		Token:     "stale-token",
		CreatedAt: now.Add(-8 * 24 * time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	}
	if err := srv.store.CreateSession(ctx, stale); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	code, env := doJSON(t, srv, "GET", "/api/role", "stale-token", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expired session request = %d, want 401", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrUnauthorized {
		t.Errorf("error = %+v, want UNAUTHORIZED", env.Error)
	}

	// The stale row is removed on rejection.
	if sess, _ := srv.store.GetSessionByToken(ctx, "stale-token"); sess != nil {
		t.Errorf("expired session still stored: %+v", sess)
	}
}

func TestRequestID_ClientSuppliedReused(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", "req_client01")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req_client01" {
		t.Errorf("X-Request-ID = %q, want client value echoed", got)
	}
	var env struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.RequestID != "req_client01" {
		t.Errorf("envelope request_id = %q, want req_client01", env.RequestID)
	}
}

func TestRole_SetAndGet(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")

	// Unset role reads back as null data.
	code, env := doJSON(t, srv, "GET", "/api/role", token, nil)
	if code != http.StatusOK || string(env.Data) != "null" {
		t.Fatalf("unset role = %d %s", code, env.Data)
	}

	code, _ = doJSON(t, srv, "POST", "/api/role", token, map[string]string{
		"role_arn": "arn:aws:iam::123456789012:role/hibernate-client",
		"region":   "us-east-1",
	})
	if code != http.StatusCreated {
		t.Fatalf("set role = %d", code)
	}

	code, env = doJSON(t, srv, "GET", "/api/role", token, nil)
	if code != http.StatusOK {
		t.Fatalf("get role = %d", code)
	}
	var rb model.RoleBinding
	if err := json.Unmarshal(env.Data, &rb); err != nil {
		t.Fatalf("parse role: %v", err)
	}
	if rb.Region != "us-east-1" || !rb.Active {
		t.Errorf("role = %+v", rb)
	}
}

func TestRole_RejectsNonARN(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")

	code, _ := doJSON(t, srv, "POST", "/api/role", token,
		map[string]string{"role_arn": "not-an-arn"})
	if code != http.StatusBadRequest {
		t.Fatalf("bad ARN = %d", code)
	}
}

func setRole(t *testing.T, srv *Server, token string) {
	t.Helper()
	code, _ := doJSON(t, srv, "POST", "/api/role", token, map[string]string{
		"role_arn": "arn:aws:iam::123456789012:role/hibernate-client",
	})
	if code != http.StatusCreated {
		t.Fatalf("set role = %d", code)
	}
}

func TestInstances_RequiresRole(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")

	code, env := doJSON(t, srv, "GET", "/api/instances", token, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("instances without role = %d", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestInstances_List(t *testing.T) {
	srv, _, instances := newTestServer(t)
	instances.instances = []model.Instance{
		{ID: "i-1", State: "running", Type: "t3.micro", Name: "web"},
	}
	token := registerAndLogin(t, srv, "alice@example.com")
	setRole(t, srv, token)

	code, env := doJSON(t, srv, "GET", "/api/instances", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list instances = %d", code)
	}
	var got []model.Instance
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("parse instances: %v", err)
	}
	if len(got) != 1 || got[0].Name != "web" {
		t.Errorf("instances = %+v", got)
	}
}

func TestInstances_BrokerFailureIsProviderError(t *testing.T) {
	srv, broker, _ := newTestServer(t)
	broker.err = &cloud.AuthorizationError{RoleARN: "arn:aws:iam::123456789012:role/hibernate-client"}
	token := registerAndLogin(t, srv, "alice@example.com")
	setRole(t, srv, token)

	code, env := doJSON(t, srv, "GET", "/api/instances", token, nil)
	if code != http.StatusBadGateway {
		t.Fatalf("instances with broken role = %d", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrProvider {
		t.Errorf("error = %+v, want PROVIDER_ERROR", env.Error)
	}
}

func TestInstances_ListFailureIsProviderError(t *testing.T) {
	srv, _, instances := newTestServer(t)
	instances.err = &cloud.InventoryError{Err: errors.New("UnauthorizedOperation")}
	token := registerAndLogin(t, srv, "alice@example.com")
	setRole(t, srv, token)

	code, env := doJSON(t, srv, "GET", "/api/instances", token, nil)
	if code != http.StatusBadGateway {
		t.Fatalf("instances with failing list = %d, want 502", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrProvider {
		t.Errorf("error = %+v, want PROVIDER_ERROR", env.Error)
	}
}

func TestToggleInstance(t *testing.T) {
	srv, _, instances := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")
	setRole(t, srv, token)

	code, _ := doJSON(t, srv, "POST", "/api/instances/i-42/toggle", token,
		map[string]string{"action": "stop"})
	if code != http.StatusOK {
		t.Fatalf("toggle = %d", code)
	}
	if len(instances.actions) != 1 || instances.actions[0] != "stop:i-42" {
		t.Errorf("actions = %v", instances.actions)
	}
}

func TestToggleInstance_InvalidAction(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")
	setRole(t, srv, token)

	code, _ := doJSON(t, srv, "POST", "/api/instances/i-42/toggle", token,
		map[string]string{"action": "reboot"})
	if code != http.StatusBadRequest {
		t.Fatalf("invalid action = %d", code)
	}
}

func TestSchedules_CRUD(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")

	code, env := doJSON(t, srv, "POST", "/api/schedules/", token, map[string]any{
		"instance_id": "i-42",
		"start_time":  "09:00",
		"stop_time":   "18:00",
		"days":        []int{1, 2, 3, 4, 5},
	})
	if code != http.StatusCreated {
		t.Fatalf("create schedule = %d: %s", code, env.Data)
	}
	var created model.Schedule
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("parse schedule: %v", err)
	}
	if !created.Active || created.UserID == "" {
		t.Errorf("created = %+v", created)
	}

	code, env = doJSON(t, srv, "GET", "/api/schedules/", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list schedules = %d", code)
	}
	var list []model.Schedule
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("parse schedules: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	code, env = doJSON(t, srv, "PATCH", "/api/schedules/"+created.ID, token,
		map[string]bool{"active": false})
	if code != http.StatusOK {
		t.Fatalf("patch schedule = %d", code)
	}
	var patched model.Schedule
	if err := json.Unmarshal(env.Data, &patched); err != nil {
		t.Fatalf("parse patched: %v", err)
	}
	if patched.Active {
		t.Error("schedule should be inactive after patch")
	}

	code, _ = doJSON(t, srv, "DELETE", "/api/schedules/"+created.ID, token, nil)
	if code != http.StatusOK {
		t.Fatalf("delete schedule = %d", code)
	}
	code, env = doJSON(t, srv, "GET", "/api/schedules/", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list after delete = %d", code)
	}
	if err := json.Unmarshal(env.Data, &list); err != nil || len(list) != 0 {
		t.Errorf("list after delete = %+v (%v)", list, err)
	}
}

func TestSchedules_RejectsInvalid(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := registerAndLogin(t, srv, "alice@example.com")

	tests := []map[string]any{
		{"instance_id": "", "start_time": "09:00", "stop_time": "18:00", "days": []int{1}},
		{"instance_id": "i-1", "start_time": "9:00", "stop_time": "18:00", "days": []int{1}},
		{"instance_id": "i-1", "start_time": "09:00", "stop_time": "25:00", "days": []int{1}},
		{"instance_id": "i-1", "start_time": "09:00", "stop_time": "18:00", "days": []int{}},
	}
	for i, body := range tests {
		code, _ := doJSON(t, srv, "POST", "/api/schedules/", token, body)
		if code != http.StatusBadRequest {
			t.Errorf("case %d: create = %d, want 400", i, code)
		}
	}
}

func TestSchedules_OwnerScoped(t *testing.T) {
	srv, _, _ := newTestServer(t)
	alice := registerAndLogin(t, srv, "alice@example.com")
	mallory := registerAndLogin(t, srv, "mallory@example.com")

	_, env := doJSON(t, srv, "POST", "/api/schedules/", alice, map[string]any{
		"instance_id": "i-42",
		"start_time":  "09:00",
		"stop_time":   "18:00",
		"days":        []int{1},
	})
	var created model.Schedule
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("parse schedule: %v", err)
	}

	// Another user cannot see, flip, or delete it.
	code, env := doJSON(t, srv, "GET", "/api/schedules/", mallory, nil)
	var list []model.Schedule
	if err := json.Unmarshal(env.Data, &list); err != nil || len(list) != 0 {
		t.Errorf("mallory sees %+v (%d)", list, code)
	}
	if code, _ := doJSON(t, srv, "PATCH", "/api/schedules/"+created.ID, mallory,
		map[string]bool{"active": false}); code != http.StatusNotFound {
		t.Errorf("cross-user patch = %d, want 404", code)
	}
	if code, _ := doJSON(t, srv, "DELETE", "/api/schedules/"+created.ID, mallory, nil); code != http.StatusNotFound {
		t.Errorf("cross-user delete = %d, want 404", code)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("s3cret")
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	ok, err := verifyPassword(hash, "s3cret")
	if err != nil || !ok {
		t.Fatalf("verifyPassword(correct) = %v, %v", ok, err)
	}
	ok, err = verifyPassword(hash, "wrong")
	if err != nil || ok {
		t.Fatalf("verifyPassword(wrong) = %v, %v", ok, err)
	}
	if _, err := verifyPassword("garbage", "s3cret"); err == nil {
		t.Error("malformed hash should error")
	}
}
