package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/hierarchy"
	"github.com/mlaroche/boussole/internal/identity"
	"github.com/mlaroche/boussole/internal/metrics"
	"github.com/mlaroche/boussole/internal/okr"
	"github.com/mlaroche/boussole/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// In-memory backing stores shared by the full-router tests
// ---------------------------------------------------------------------------

// fakeDB is shared in-memory state behind the per-interface store fakes.
type fakeDB struct {
	mu sync.Mutex

	users     map[int64]*identity.User
	usernames map[string]int64
	emails    map[string]int64

	orgs  map[int64]*hierarchy.Organization
	depts map[int64]*hierarchy.Department
	teams map[int64]*hierarchy.Team

	okrs     map[int64]*okr.OKR
	okrOrder []int64

	sessions map[string]int64

	nextID    int64
	nextToken int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:     make(map[int64]*identity.User),
		usernames: make(map[string]int64),
		emails:    make(map[string]int64),
		orgs:      make(map[int64]*hierarchy.Organization),
		depts:     make(map[int64]*hierarchy.Department),
		teams:     make(map[int64]*hierarchy.Team),
		okrs:      make(map[int64]*okr.OKR),
		sessions:  make(map[string]int64),
	}
}

// seq returns the next id. Callers must hold mu.
func (db *fakeDB) seq() int64 {
	db.nextID++
	return db.nextID
}

// fakeAccountStore implements identity.AccountStore, authz.SessionLookup and
// okr.MemberDirectory.
type fakeAccountStore struct {
	db *fakeDB
}

func (s *fakeAccountStore) Create(_ context.Context, in identity.RegisterInput, passwordHash string) (*identity.User, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.usernames[in.Username]; ok {
		return nil, identity.ErrUsernameTaken
	}
	if _, ok := db.emails[in.Email]; ok {
		return nil, identity.ErrEmailTaken
	}
	if in.DepartmentID != nil {
		if _, ok := db.depts[*in.DepartmentID]; !ok {
			return nil, identity.ErrDepartmentNotFound
		}
	}
	if in.TeamID != nil {
		if _, ok := db.teams[*in.TeamID]; !ok {
			return nil, identity.ErrTeamNotFound
		}
	}

	u := &identity.User{
		ID:           db.seq(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		Role:         authz.Role(in.Role),
		DepartmentID: in.DepartmentID,
		TeamID:       in.TeamID,
		CreatedAt:    time.Now(),
	}
	db.users[u.ID] = u
	db.usernames[u.Username] = u.ID
	db.emails[u.Email] = u.ID
	return u, nil
}

func (s *fakeAccountStore) GetByID(_ context.Context, id int64) (*identity.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeAccountStore) GetByUsername(_ context.Context, username string) (*identity.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	id, ok := s.db.usernames[username]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return s.db.users[id], nil
}

func (s *fakeAccountStore) ListByTeam(_ context.Context, teamID int64) ([]*identity.Member, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var members []*identity.Member
	for _, u := range s.db.users {
		if u.TeamID != nil && *u.TeamID == teamID {
			members = append(members, &identity.Member{
				ID:       u.ID,
				Username: u.Username,
				Email:    u.Email,
				Role:     u.Role,
			})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

func (s *fakeAccountStore) CreateSession(_ context.Context, userID int64) (string, *identity.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.nextToken++
	token := fmt.Sprintf("session-%d", s.db.nextToken)
	s.db.sessions[token] = userID
	now := time.Now()
	return token, &identity.Session{UserID: userID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, nil
}

func (s *fakeAccountStore) DeleteSession(_ context.Context, token string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.sessions, token)
	return nil
}

func (s *fakeAccountStore) LookupSession(_ context.Context, token string) (*authz.Actor, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	id, ok := s.db.sessions[token]
	if !ok {
		return nil, errors.New("session not found")
	}
	u := s.db.users[id]
	return &authz.Actor{
		UserID:       u.ID,
		Username:     u.Username,
		Role:         u.Role,
		DepartmentID: u.DepartmentID,
		TeamID:       u.TeamID,
	}, nil
}

// fakeUnitStore implements hierarchy.UnitStore and okr.TeamDirectory.
type fakeUnitStore struct {
	db *fakeDB
}

func (s *fakeUnitStore) CreateOrganization(_ context.Context, input hierarchy.CreateOrganizationInput) (*hierarchy.Organization, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	org := &hierarchy.Organization{ID: s.db.seq(), Name: input.Name, Description: input.Description, CreatedAt: time.Now()}
	s.db.orgs[org.ID] = org
	return org, nil
}

func (s *fakeUnitStore) CreateDepartment(_ context.Context, input hierarchy.CreateDepartmentInput) (*hierarchy.Department, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.orgs[input.OrganizationID]; !ok {
		return nil, hierarchy.ErrOrganizationNotFound
	}
	dept := &hierarchy.Department{ID: s.db.seq(), Name: input.Name, Description: input.Description, OrganizationID: input.OrganizationID, CreatedAt: time.Now()}
	s.db.depts[dept.ID] = dept
	return dept, nil
}

func (s *fakeUnitStore) CreateTeam(_ context.Context, input hierarchy.CreateTeamInput) (*hierarchy.Team, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.depts[input.DepartmentID]; !ok {
		return nil, hierarchy.ErrDepartmentNotFound
	}
	team := &hierarchy.Team{ID: s.db.seq(), Name: input.Name, Description: input.Description, DepartmentID: input.DepartmentID, CreatedAt: time.Now()}
	s.db.teams[team.ID] = team
	return team, nil
}

func (s *fakeUnitStore) ListOrganizations(_ context.Context) ([]*hierarchy.Organization, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var orgs []*hierarchy.Organization
	for _, o := range s.db.orgs {
		orgs = append(orgs, o)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (s *fakeUnitStore) ListDepartments(_ context.Context, organizationID *int64) ([]*hierarchy.Department, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var depts []*hierarchy.Department
	for _, d := range s.db.depts {
		if organizationID == nil || d.OrganizationID == *organizationID {
			depts = append(depts, d)
		}
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i].Name < depts[j].Name })
	return depts, nil
}

func (s *fakeUnitStore) ListTeams(_ context.Context, departmentID *int64) ([]*hierarchy.Team, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var teams []*hierarchy.Team
	for _, t := range s.db.teams {
		if departmentID == nil || t.DepartmentID == *departmentID {
			teams = append(teams, t)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func (s *fakeUnitStore) GetTeam(_ context.Context, id int64) (*hierarchy.Team, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.teams[id]
	if !ok {
		return nil, hierarchy.ErrTeamNotFound
	}
	return t, nil
}

// fakeRecordStore implements okr.RecordStore.
type fakeRecordStore struct {
	db *fakeDB
}

func (s *fakeRecordStore) Create(_ context.Context, rec okr.CreateRecord) (*okr.OKR, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	team := s.db.teams[rec.TeamID]
	assignee := s.db.users[rec.AssignedUserID]
	creator := s.db.users[rec.CreatedBy]

	o := &okr.OKR{
		ID:               s.db.seq(),
		Title:            rec.Title,
		Description:      rec.Description,
		Objective:        rec.Objective,
		KeyResults:       rec.KeyResults,
		Progress:         rec.Progress,
		Status:           rec.Status,
		TeamID:           rec.TeamID,
		TeamName:         team.Name,
		DepartmentID:     team.DepartmentID,
		AssignedUserID:   rec.AssignedUserID,
		AssignedUsername: assignee.Username,
		CreatedBy:        rec.CreatedBy,
		CreatorUsername:  creator.Username,
		StartDate:        rec.StartDate,
		EndDate:          rec.EndDate,
		CreatedAt:        time.Now(),
	}
	s.db.okrs[o.ID] = o
	s.db.okrOrder = append(s.db.okrOrder, o.ID)
	return o, nil
}

func (s *fakeRecordStore) Get(_ context.Context, id int64) (*okr.OKR, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.okrs[id]
	if !ok {
		return nil, okr.ErrNotFound
	}
	return o, nil
}

// listLocked returns all records newest first. Callers must hold mu.
func (s *fakeRecordStore) listLocked() []*okr.OKR {
	out := make([]*okr.OKR, 0, len(s.db.okrOrder))
	for i := len(s.db.okrOrder) - 1; i >= 0; i-- {
		if o, ok := s.db.okrs[s.db.okrOrder[i]]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (s *fakeRecordStore) ListAll(_ context.Context) ([]*okr.OKR, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.listLocked(), nil
}

func (s *fakeRecordStore) ListForTeam(_ context.Context, teamID int64) ([]*okr.OKR, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*okr.OKR
	for _, o := range s.listLocked() {
		if o.TeamID == teamID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeRecordStore) ListForUser(_ context.Context, userID int64) ([]*okr.OKR, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*okr.OKR
	for _, o := range s.listLocked() {
		if o.AssignedUserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeRecordStore) UpdateProgress(_ context.Context, id int64, progress float64, status okr.Status) (*okr.OKR, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.okrs[id]
	if !ok {
		return nil, okr.ErrNotFound
	}
	o.Progress = progress
	o.Status = status
	return o, nil
}

func (s *fakeRecordStore) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.okrs[id]; !ok {
		return okr.ErrNotFound
	}
	delete(s.db.okrs, id)
	return nil
}

// ---------------------------------------------------------------------------
// Test server fixture
// ---------------------------------------------------------------------------

type testServer struct {
	db      *fakeDB
	router  http.Handler
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	// Rate 0 disables limiting; the rate limit tests build their own server.
	return newTestServerWithLimit(t, 0)
}

func newTestServerWithLimit(t *testing.T, rate int) *testServer {
	t.Helper()

	db := newFakeDB()
	accounts := &fakeAccountStore{db: db}
	units := &fakeUnitStore{db: db}
	records := &fakeRecordStore{db: db}

	m := metrics.New()
	deps := RouterDeps{
		Accounts:       identity.NewService(accounts),
		Units:          hierarchy.NewService(units),
		OKRs:           okr.NewService(records, units, accounts),
		Sessions:       accounts,
		Limiter:        ratelimit.New(rate, time.Minute),
		Metrics:        m,
		AllowedOrigins: []string{"*"},
	}
	return &testServer{db: db, router: NewRouter(deps), metrics: m}
}

// do performs a request against the router, optionally with a bearer token
// and a JSON body.
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "203.0.113.10:44444"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func wantErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (body %s)", status, rec.Code, rec.Body.String())
	}
	var envelope errorEnvelope
	decodeBody(t, rec, &envelope)
	if envelope.Error.Code != code {
		t.Fatalf("expected error code %q, got %q", code, envelope.Error.Code)
	}
}

// seedHash is a parseable argon2id hash with deliberately tiny cost
// parameters. Verification reads its parameters from the string, so failed
// logins against seeded users stay cheap. No password matches it.
const seedHash = "$argon2id$v=19$m=16,t=1,p=1$MDEyMzQ1Njc4OWFiY2RlZg$MDEyMzQ1Njc4OWFiY2RlZg"

// seedUser inserts a user with an active session directly into the backing
// store, skipping the expensive registration-time password hash.
func (ts *testServer) seedUser(username string, role authz.Role, deptID, teamID *int64) (int64, string) {
	db := ts.db
	db.mu.Lock()
	defer db.mu.Unlock()

	u := &identity.User{
		ID:           db.seq(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: seedHash,
		Role:         role,
		DepartmentID: deptID,
		TeamID:       teamID,
		CreatedAt:    time.Now(),
	}
	db.users[u.ID] = u
	db.usernames[u.Username] = u.ID
	db.emails[u.Email] = u.ID

	token := fmt.Sprintf("seed-%s-%d", username, u.ID)
	db.sessions[token] = u.ID
	return u.ID, token
}

// seedHierarchy creates one organization, one department and one team.
func (ts *testServer) seedHierarchy() (orgID, deptID, teamID int64) {
	db := ts.db
	db.mu.Lock()
	defer db.mu.Unlock()

	org := &hierarchy.Organization{ID: db.seq(), Name: "Acme", CreatedAt: time.Now()}
	db.orgs[org.ID] = org
	dept := &hierarchy.Department{ID: db.seq(), Name: "Engineering", OrganizationID: org.ID, CreatedAt: time.Now()}
	db.depts[dept.ID] = dept
	team := &hierarchy.Team{ID: db.seq(), Name: "Platform", DepartmentID: dept.ID, CreatedAt: time.Now()}
	db.teams[team.ID] = team
	return org.ID, dept.ID, team.ID
}

func int64Ptr(v int64) *int64 { return &v }

// okrBody builds a valid create payload for the given team and assignee.
func okrBody(teamID, assigneeID int64) map[string]interface{} {
	return map[string]interface{}{
		"title":            "Ship the reporting pipeline",
		"description":      "Quarterly focus",
		"objective":        "Reliable weekly reports",
		"key_results":      []string{"Automate extraction", "Alert on failures"},
		"team_id":          teamID,
		"assigned_user_id": assigneeID,
		"start_date":       "2025-01-01",
		"end_date":         "2025-03-31",
	}
}

// ---------------------------------------------------------------------------
// Health check
// ---------------------------------------------------------------------------

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func TestHealthCheck_OK(t *testing.T) {
	// The nil-DB path reports connected.
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
	if body["database"] != "connected" {
		t.Errorf("expected database=connected, got %q", body["database"])
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestHealthCheck_DegradedDB(t *testing.T) {
	handler := NewRouter(RouterDeps{
		AllowedOrigins: []string{"*"},
		DB:             &fakePinger{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "degraded" {
		t.Errorf("expected status=degraded, got %q", body["status"])
	}
	if body["database"] != "unreachable" {
		t.Errorf("expected database=unreachable, got %q", body["database"])
	}
}

// ---------------------------------------------------------------------------
// Registration and login
// ---------------------------------------------------------------------------

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}

	var created identity.User
	decodeBody(t, rec, &created)
	if created.ID == 0 {
		t.Error("expected a non-zero user id")
	}
	if created.Username != "alice" {
		t.Errorf("expected username alice, got %q", created.Username)
	}
	if created.Role != authz.RoleUser {
		t.Errorf("expected default role User, got %q", created.Role)
	}

	// The credential hash must never appear in a response.
	if strings.Contains(rec.Body.String(), "s3cret-pass") || strings.Contains(rec.Body.String(), "argon2id") {
		t.Fatalf("response leaked credential material: %s", rec.Body.String())
	}

	// Duplicate username.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "alice",
		"email":    "other@example.com",
		"password": "pw",
	})
	wantErrorCode(t, rec, http.StatusConflict, "duplicate")

	// Duplicate email.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "pw",
	})
	wantErrorCode(t, rec, http.StatusConflict, "duplicate")

	// Login with the right password.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "s3cret-pass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}

	var loginResp struct {
		Token string        `json:"token"`
		User  identity.User `json:"user"`
	}
	decodeBody(t, rec, &loginResp)
	if loginResp.Token == "" {
		t.Fatal("expected a session token")
	}
	if loginResp.User.Username != "alice" {
		t.Errorf("expected user alice in login response, got %q", loginResp.User.Username)
	}

	// The token authenticates /auth/me.
	rec = ts.do(t, http.MethodGet, "/api/v1/auth/me", loginResp.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}

	// Wrong password.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	wantErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")

	// Unknown user gets the same generic response.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "whatever",
	})
	wantErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing username",
			body:       map[string]interface{}{"email": "a@b.c", "password": "pw"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "missing email",
			body:       map[string]interface{}{"username": "bob", "password": "pw"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "missing password",
			body:       map[string]interface{}{"username": "bob", "email": "a@b.c"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "unknown role",
			body:       map[string]interface{}{"username": "bob", "email": "a@b.c", "password": "pw", "role": "Superuser"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "unknown team",
			body:       map[string]interface{}{"username": "bob", "email": "a@b.c", "password": "pw", "team_id": 999},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			wantErrorCode(t, rec, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestLoginValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice"})
	wantErrorCode(t, rec, http.StatusUnprocessableEntity, "validation_error")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	ts.router.ServeHTTP(rec2, req)
	wantErrorCode(t, rec2, http.StatusBadRequest, "invalid_body")
}

// ---------------------------------------------------------------------------
// Sessions: me and logout
// ---------------------------------------------------------------------------

func TestMeRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	wantErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = ts.do(t, http.MethodGet, "/api/v1/auth/me", "bogus-token", nil)
	wantErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestMeReturnsProfile(t *testing.T) {
	ts := newTestServer(t)
	_, _, teamID := ts.seedHierarchy()
	_, token := ts.seedUser("carol", authz.RoleTeamLead, nil, int64Ptr(teamID))

	rec := ts.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var u identity.User
	decodeBody(t, rec, &u)
	if u.Username != "carol" {
		t.Errorf("expected carol, got %q", u.Username)
	}
	if u.Role != authz.RoleTeamLead {
		t.Errorf("expected Team Lead, got %q", u.Role)
	}
	if u.TeamID == nil || *u.TeamID != teamID {
		t.Errorf("expected team id %d, got %v", teamID, u.TeamID)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.seedUser("dave", authz.RoleUser, nil, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	wantErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")
}

// ---------------------------------------------------------------------------
// Hierarchy: admin creates, everyone lists
// ---------------------------------------------------------------------------

func TestHierarchyAdminGating(t *testing.T) {
	ts := newTestServer(t)
	_, userToken := ts.seedUser("plain", authz.RoleUser, nil, nil)
	_, adminToken := ts.seedUser("root", authz.RoleAdmin, nil, nil)

	body := map[string]string{"name": "Acme"}

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/organizations", "", body)
	wantErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/organizations", userToken, body)
	wantErrorCode(t, rec, http.StatusForbidden, "forbidden")

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/organizations", adminToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}
}

func TestHierarchyCreateChain(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.seedUser("root", authz.RoleAdmin, nil, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/organizations", adminToken, map[string]string{"name": "Acme"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("org: expected 201, got %d", rec.Code)
	}
	var org hierarchy.Organization
	decodeBody(t, rec, &org)

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/departments", adminToken, map[string]interface{}{
		"name":            "Engineering",
		"organization_id": org.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("dept: expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}
	var dept hierarchy.Department
	decodeBody(t, rec, &dept)

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/teams", adminToken, map[string]interface{}{
		"name":          "Platform",
		"department_id": dept.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("team: expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}

	// Missing name.
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/organizations", adminToken, map[string]string{"name": "   "})
	wantErrorCode(t, rec, http.StatusUnprocessableEntity, "validation_error")

	// Department under a missing organization.
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/departments", adminToken, map[string]interface{}{
		"name":            "Ghost",
		"organization_id": 9999,
	})
	wantErrorCode(t, rec, http.StatusNotFound, "not_found")

	// Team under a missing department.
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/teams", adminToken, map[string]interface{}{
		"name":          "Ghost",
		"department_id": 9999,
	})
	wantErrorCode(t, rec, http.StatusNotFound, "not_found")
}

func TestHierarchyLists(t *testing.T) {
	ts := newTestServer(t)
	orgID, deptID, teamID := ts.seedHierarchy()
	_, token := ts.seedUser("viewer", authz.RoleUser, nil, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/organizations", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("organizations: expected 200, got %d", rec.Code)
	}
	var orgsResp struct {
		Organizations []*hierarchy.Organization `json:"organizations"`
	}
	decodeBody(t, rec, &orgsResp)
	if len(orgsResp.Organizations) != 1 || orgsResp.Organizations[0].ID != orgID {
		t.Fatalf("unexpected organizations: %+v", orgsResp.Organizations)
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/departments?organization_id=%d", orgID), token, nil)
	var deptsResp struct {
		Departments []*hierarchy.Department `json:"departments"`
	}
	decodeBody(t, rec, &deptsResp)
	if len(deptsResp.Departments) != 1 || deptsResp.Departments[0].ID != deptID {
		t.Fatalf("unexpected departments: %+v", deptsResp.Departments)
	}

	// Filter that matches nothing.
	rec = ts.do(t, http.MethodGet, "/api/v1/departments?organization_id=424242", token, nil)
	deptsResp.Departments = nil
	decodeBody(t, rec, &deptsResp)
	if len(deptsResp.Departments) != 0 {
		t.Fatalf("expected no departments, got %+v", deptsResp.Departments)
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/teams?department_id=%d", deptID), token, nil)
	var teamsResp struct {
		Teams []*hierarchy.Team `json:"teams"`
	}
	decodeBody(t, rec, &teamsResp)
	if len(teamsResp.Teams) != 1 || teamsResp.Teams[0].ID != teamID {
		t.Fatalf("unexpected teams: %+v", teamsResp.Teams)
	}

	// Malformed filter.
	rec = ts.do(t, http.MethodGet, "/api/v1/teams?department_id=abc", token, nil)
	wantErrorCode(t, rec, http.StatusBadRequest, "invalid_id")

	// Listing requires a session.
	rec = ts.do(t, http.MethodGet, "/api/v1/teams", "", nil)
	wantErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestTeamMembers(t *testing.T) {
	ts := newTestServer(t)
	_, _, teamID := ts.seedHierarchy()
	ts.seedUser("zoe", authz.RoleUser, nil, int64Ptr(teamID))
	ts.seedUser("amir", authz.RoleTeamLead, nil, int64Ptr(teamID))
	ts.seedUser("outsider", authz.RoleUser, nil, nil)
	_, token := ts.seedUser("viewer", authz.RoleUser, nil, nil)

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/teams/%d/members", teamID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Members []*identity.Member `json:"members"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(resp.Members))
	}
	// Sorted by username.
	if resp.Members[0].Username != "amir" || resp.Members[1].Username != "zoe" {
		t.Errorf("unexpected member order: %q, %q", resp.Members[0].Username, resp.Members[1].Username)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/teams/9999/members", token, nil)
	wantErrorCode(t, rec, http.StatusNotFound, "not_found")

	rec = ts.do(t, http.MethodGet, "/api/v1/teams/abc/members", token, nil)
	wantErrorCode(t, rec, http.StatusBadRequest, "invalid_id")
}

// ---------------------------------------------------------------------------
// OKR lifecycle over HTTP
// ---------------------------------------------------------------------------

func TestOKRLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, _, teamID := ts.seedHierarchy()
	assigneeID, assigneeToken := ts.seedUser("alice", authz.RoleUser, nil, int64Ptr(teamID))
	_, strangerToken := ts.seedUser("mallory", authz.RoleUser, nil, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/okrs", assigneeToken, okrBody(teamID, assigneeID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}

	var created okr.OKR
	decodeBody(t, rec, &created)
	if created.ID == 0 {
		t.Fatal("expected a non-zero okr id")
	}
	if created.TeamName != "Platform" {
		t.Errorf("expected joined team name Platform, got %q", created.TeamName)
	}
	if created.AssignedUsername != "alice" || created.CreatorUsername != "alice" {
		t.Errorf("expected joined usernames, got assignee %q creator %q", created.AssignedUsername, created.CreatorUsername)
	}
	if created.Status != okr.StatusNotStarted {
		t.Errorf("expected default status Not Started, got %q", created.Status)
	}
	if created.Progress != 0 {
		t.Errorf("expected default progress 0, got %v", created.Progress)
	}
	if len(created.KeyResults) != 2 || created.KeyResults[0] != "Automate extraction" {
		t.Errorf("unexpected key results: %v", created.KeyResults)
	}

	path := fmt.Sprintf("/api/v1/okrs/%d", created.ID)

	rec = ts.do(t, http.MethodGet, path, assigneeToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	// Progress over 100 is clamped at the boundary.
	rec = ts.do(t, http.MethodPut, path+"/progress", assigneeToken, map[string]interface{}{
		"progress": 150.0,
		"status":   "Completed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("progress: expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	var updated okr.OKR
	decodeBody(t, rec, &updated)
	if updated.Progress != 100 {
		t.Errorf("expected clamped progress 100, got %v", updated.Progress)
	}
	if updated.Status != okr.StatusCompleted {
		t.Errorf("expected status Completed, got %q", updated.Status)
	}

	// A user with no relation to the OKR can read but not mutate.
	rec = ts.do(t, http.MethodGet, path, strangerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stranger get: expected 200, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPut, path+"/progress", strangerToken, map[string]interface{}{
		"progress": 10.0,
		"status":   "On Hold",
	})
	wantErrorCode(t, rec, http.StatusForbidden, "forbidden")
	rec = ts.do(t, http.MethodDelete, path, strangerToken, nil)
	wantErrorCode(t, rec, http.StatusForbidden, "forbidden")

	// The assignee deletes it.
	rec = ts.do(t, http.MethodDelete, path, assigneeToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, path, assigneeToken, nil)
	wantErrorCode(t, rec, http.StatusNotFound, "not_found")
}

func TestOKRCreateValidation(t *testing.T) {
	ts := newTestServer(t)
	_, _, teamID := ts.seedHierarchy()
	assigneeID, token := ts.seedUser("alice", authz.RoleUser, nil, int64Ptr(teamID))
	outsiderID, _ := ts.seedUser("walter", authz.RoleUser, nil, nil)

	mutate := func(fn func(map[string]interface{})) map[string]interface{} {
		body := okrBody(teamID, assigneeID)
		fn(body)
		return body
	}

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing title",
			body:       mutate(func(b map[string]interface{}) { b["title"] = "  " }),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "no key results",
			body:       mutate(func(b map[string]interface{}) { b["key_results"] = []string{} }),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "blank key result",
			body:       mutate(func(b map[string]interface{}) { b["key_results"] = []string{"ok", "   "} }),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "end before start",
			body:       mutate(func(b map[string]interface{}) { b["end_date"] = "2024-12-31" }),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "bad date format",
			body:       mutate(func(b map[string]interface{}) { b["start_date"] = "01/02/2025" }),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "invalid initial status",
			body:       mutate(func(b map[string]interface{}) { b["status"] = "Paused" }),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "assignee outside the team",
			body:       mutate(func(b map[string]interface{}) { b["assigned_user_id"] = outsiderID }),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "unknown team",
			body:       mutate(func(b map[string]interface{}) { b["team_id"] = 9999 }),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "unknown assignee",
			body:       mutate(func(b map[string]interface{}) { b["assigned_user_id"] = 9999 }),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/okrs", token, tt.body)
			wantErrorCode(t, rec, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestOKRListFilters(t *testing.T) {
	ts := newTestServer(t)
	_, deptID, teamID := ts.seedHierarchy()

	// A second team in the same department.
	ts.db.mu.Lock()
	team2 := &hierarchy.Team{ID: ts.db.seq(), Name: "Mobile", DepartmentID: deptID, CreatedAt: time.Now()}
	ts.db.teams[team2.ID] = team2
	ts.db.mu.Unlock()

	aliceID, aliceToken := ts.seedUser("alice", authz.RoleUser, nil, int64Ptr(teamID))
	bobID, bobToken := ts.seedUser("bob", authz.RoleUser, nil, int64Ptr(team2.ID))

	for i := 0; i < 3; i++ {
		body := okrBody(teamID, aliceID)
		body["title"] = fmt.Sprintf("Platform objective %d", i+1)
		if rec := ts.do(t, http.MethodPost, "/api/v1/okrs", aliceToken, body); rec.Code != http.StatusCreated {
			t.Fatalf("seed create %d: got %d", i, rec.Code)
		}
	}
	body := okrBody(team2.ID, bobID)
	body["title"] = "Mobile objective"
	if rec := ts.do(t, http.MethodPost, "/api/v1/okrs", bobToken, body); rec.Code != http.StatusCreated {
		t.Fatalf("seed mobile create: got %d", rec.Code)
	}

	var listResp struct {
		OKRs []*okr.OKR `json:"okrs"`
	}

	// Unfiltered list returns everything, newest first.
	rec := ts.do(t, http.MethodGet, "/api/v1/okrs", aliceToken, nil)
	decodeBody(t, rec, &listResp)
	if len(listResp.OKRs) != 4 {
		t.Fatalf("expected 4 okrs, got %d", len(listResp.OKRs))
	}
	if listResp.OKRs[0].Title != "Mobile objective" {
		t.Errorf("expected newest first, got %q", listResp.OKRs[0].Title)
	}

	// Team filter.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/okrs?team_id=%d", teamID), aliceToken, nil)
	listResp.OKRs = nil
	decodeBody(t, rec, &listResp)
	if len(listResp.OKRs) != 3 {
		t.Fatalf("expected 3 okrs for team filter, got %d", len(listResp.OKRs))
	}
	for _, o := range listResp.OKRs {
		if o.TeamID != teamID {
			t.Errorf("team filter leaked okr from team %d", o.TeamID)
		}
	}

	// Assignee filter.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/okrs?assigned_to=%d", bobID), aliceToken, nil)
	listResp.OKRs = nil
	decodeBody(t, rec, &listResp)
	if len(listResp.OKRs) != 1 || listResp.OKRs[0].AssignedUsername != "bob" {
		t.Fatalf("unexpected assignee filter result: %+v", listResp.OKRs)
	}

	// Mine is the caller's assignments.
	rec = ts.do(t, http.MethodGet, "/api/v1/okrs/mine", bobToken, nil)
	listResp.OKRs = nil
	decodeBody(t, rec, &listResp)
	if len(listResp.OKRs) != 1 || listResp.OKRs[0].Title != "Mobile objective" {
		t.Fatalf("unexpected mine result: %+v", listResp.OKRs)
	}

	// Malformed filter.
	rec = ts.do(t, http.MethodGet, "/api/v1/okrs?team_id=abc", aliceToken, nil)
	wantErrorCode(t, rec, http.StatusBadRequest, "invalid_id")
}

func TestOKRElevatedRoles(t *testing.T) {
	ts := newTestServer(t)
	_, deptID, teamID := ts.seedHierarchy()
	assigneeID, assigneeToken := ts.seedUser("alice", authz.RoleUser, nil, int64Ptr(teamID))
	_, leadToken := ts.seedUser("lead", authz.RoleTeamLead, nil, int64Ptr(teamID))
	_, managerToken := ts.seedUser("manager", authz.RoleManager, int64Ptr(deptID), nil)
	_, otherLeadToken := ts.seedUser("otherlead", authz.RoleTeamLead, nil, int64Ptr(9999))

	rec := ts.do(t, http.MethodPost, "/api/v1/okrs", assigneeToken, okrBody(teamID, assigneeID))
	var created okr.OKR
	decodeBody(t, rec, &created)
	path := fmt.Sprintf("/api/v1/okrs/%d/progress", created.ID)

	update := map[string]interface{}{"progress": 40.0, "status": "In Progress"}

	// The team's lead may update.
	if rec := ts.do(t, http.MethodPut, path, leadToken, update); rec.Code != http.StatusOK {
		t.Fatalf("team lead update: expected 200, got %d", rec.Code)
	}

	// The department's manager may update.
	if rec := ts.do(t, http.MethodPut, path, managerToken, update); rec.Code != http.StatusOK {
		t.Fatalf("manager update: expected 200, got %d", rec.Code)
	}

	// A lead of a different team may not.
	rec = ts.do(t, http.MethodPut, path, otherLeadToken, update)
	wantErrorCode(t, rec, http.StatusForbidden, "forbidden")
}

// ---------------------------------------------------------------------------
// Analytics endpoints
// ---------------------------------------------------------------------------

func TestAnalyticsOverview(t *testing.T) {
	ts := newTestServer(t)
	_, _, teamID := ts.seedHierarchy()
	aliceID, aliceToken := ts.seedUser("alice", authz.RoleUser, nil, int64Ptr(teamID))

	progresses := []float64{10, 30, 80}
	for i, p := range progresses {
		body := okrBody(teamID, aliceID)
		body["title"] = fmt.Sprintf("Objective %d", i+1)
		body["progress"] = p
		body["status"] = "In Progress"
		if rec := ts.do(t, http.MethodPost, "/api/v1/okrs", aliceToken, body); rec.Code != http.StatusCreated {
			t.Fatalf("seed create %d: got %d (body %s)", i, rec.Code, rec.Body.String())
		}
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics/overview", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		TotalOKRs            int `json:"total_okrs"`
		ProgressDistribution []struct {
			Label string `json:"label"`
			Count int    `json:"count"`
		} `json:"progress_distribution"`
		StatusDistribution map[string]int `json:"status_distribution"`
		TeamPerformance    []struct {
			TeamName        string  `json:"team_name"`
			AverageProgress float64 `json:"average_progress"`
			OKRCount        int     `json:"okr_count"`
		} `json:"team_performance"`
	}
	decodeBody(t, rec, &resp)

	if resp.TotalOKRs != 3 {
		t.Errorf("expected 3 total okrs, got %d", resp.TotalOKRs)
	}
	if len(resp.ProgressDistribution) != 4 {
		t.Fatalf("expected 4 buckets, got %d", len(resp.ProgressDistribution))
	}
	sum := 0
	for _, b := range resp.ProgressDistribution {
		sum += b.Count
	}
	if sum != 3 {
		t.Errorf("bucket counts should sum to 3, got %d", sum)
	}
	if resp.ProgressDistribution[0].Label != "0-25%" || resp.ProgressDistribution[0].Count != 1 {
		t.Errorf("unexpected first bucket: %+v", resp.ProgressDistribution[0])
	}
	if resp.StatusDistribution["In Progress"] != 3 {
		t.Errorf("expected 3 In Progress, got %v", resp.StatusDistribution)
	}
	if len(resp.TeamPerformance) != 1 {
		t.Fatalf("expected 1 team row, got %d", len(resp.TeamPerformance))
	}
	row := resp.TeamPerformance[0]
	if row.TeamName != "Platform" || row.OKRCount != 3 || row.AverageProgress != 40 {
		t.Errorf("unexpected team performance row: %+v", row)
	}
}

func TestAnalyticsDashboard(t *testing.T) {
	ts := newTestServer(t)
	_, _, teamID := ts.seedHierarchy()
	aliceID, aliceToken := ts.seedUser("alice", authz.RoleUser, nil, int64Ptr(teamID))
	bobID, bobToken := ts.seedUser("bob", authz.RoleUser, nil, int64Ptr(teamID))

	body := okrBody(teamID, aliceID)
	body["progress"] = 50.0
	body["status"] = "Completed"
	ts.do(t, http.MethodPost, "/api/v1/okrs", aliceToken, body)

	body = okrBody(teamID, bobID)
	body["title"] = "Bob objective"
	ts.do(t, http.MethodPost, "/api/v1/okrs", bobToken, body)

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics/dashboard", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Summary struct {
			Total           int     `json:"total"`
			Completed       int     `json:"completed"`
			InProgress      int     `json:"in_progress"`
			AverageProgress float64 `json:"average_progress"`
		} `json:"summary"`
		OKRs []*okr.OKR `json:"okrs"`
	}
	decodeBody(t, rec, &resp)

	// Only alice's assignment counts toward her dashboard.
	if resp.Summary.Total != 1 {
		t.Errorf("expected total 1, got %d", resp.Summary.Total)
	}
	if resp.Summary.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", resp.Summary.Completed)
	}
	if resp.Summary.AverageProgress != 50 {
		t.Errorf("expected average 50, got %v", resp.Summary.AverageProgress)
	}
	if len(resp.OKRs) != 1 || resp.OKRs[0].AssignedUserID != aliceID {
		t.Fatalf("unexpected dashboard okrs: %+v", resp.OKRs)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting on the auth endpoints
// ---------------------------------------------------------------------------

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServerWithLimit(t, 2)
	ts.seedUser("alice", authz.RoleUser, nil, nil)

	body := map[string]string{"username": "alice", "password": "wrong"}

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	wantErrorCode(t, rec, http.StatusTooManyRequests, "rate_limited")
	if rec.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("expected X-RateLimit-Limit 2, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	// Authenticated endpoints are not limited.
	_, token := ts.seedUser("carol", authz.RoleUser, nil, nil)
	if rec := ts.do(t, http.MethodGet, "/api/v1/auth/me", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("me should not be rate limited, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Middleware behavior via the router
// ---------------------------------------------------------------------------

func TestRouter_SecureHeadersApplied(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options: nosniff on router responses")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options: DENY on router responses")
	}
}

func TestRouter_RequestIDApplied(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	id := rec.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("expected X-Request-ID to be set on router responses")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected a uuid request id, got %q", id)
	}
}

func TestRouter_ForwardsExistingRequestID(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "  custom-id-42 \n")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "custom-id-42" {
		t.Errorf("expected sanitized forwarded id, got %q", got)
	}
}

func TestRouter_CORSApplied(t *testing.T) {
	db := newFakeDB()
	accounts := &fakeAccountStore{db: db}
	deps := RouterDeps{
		Accounts:       identity.NewService(accounts),
		Sessions:       accounts,
		AllowedOrigins: []string{"https://myapp.com"},
	}
	handler := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://myapp.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://myapp.com" {
		t.Errorf("expected Access-Control-Allow-Origin=https://myapp.com, got %q", got)
	}

	// An origin not on the list gets no Allow-Origin header.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no Allow-Origin for unknown origin, got %q", got)
	}
}

func TestRouter_PreflightAtAnyPath(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/okrs", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent && rec.Code != http.StatusOK {
		t.Errorf("expected 204 or 200 for OPTIONS preflight, got %d", rec.Code)
	}
}

func TestRouter_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/nonexistent-path", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Metrics endpoints
// ---------------------------------------------------------------------------

func TestMetricsExposition(t *testing.T) {
	ts := newTestServer(t)

	// Generate one request so the HTTP counters have samples.
	ts.do(t, http.MethodGet, "/health", "", nil)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected Go collector metrics in exposition")
	}
	if !strings.Contains(body, "boussole_http_requests_total") {
		t.Error("expected boussole_http_requests_total in exposition")
	}
}

func TestAdminMetricsSummary(t *testing.T) {
	ts := newTestServer(t)
	_, userToken := ts.seedUser("plain", authz.RoleUser, nil, nil)
	_, adminToken := ts.seedUser("root", authz.RoleAdmin, nil, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/metrics", userToken, nil)
	wantErrorCode(t, rec, http.StatusForbidden, "forbidden")

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/metrics", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var summary metrics.Summary
	decodeBody(t, rec, &summary)
	if summary.Server.StartTime == 0 {
		t.Error("expected a server start time in the summary")
	}
}

// ---------------------------------------------------------------------------
// writeError / writeJSON / readJSON helpers
// ---------------------------------------------------------------------------

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "not_found", "resource not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Errorf("expected code=not_found, got %q", envelope.Error.Code)
	}
	if envelope.Error.Message != "resource not found" {
		t.Errorf("expected message='resource not found', got %q", envelope.Error.Message)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"hello": "world"})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("expected hello=world, got %q", body["hello"])
	}
}

func TestReadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"test","value":42}`))

	var result struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	if err := readJSON(req, &result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Name != "test" || result.Value != 42 {
		t.Errorf("unexpected result: %+v", result)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	var m map[string]interface{}
	if err := readJSON(req, &m); err == nil {
		t.Error("expected error for invalid JSON")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := readJSON(req, &m); err == nil {
		t.Error("expected error for empty body")
	}
}

// ---------------------------------------------------------------------------
// extractBearerToken
// ---------------------------------------------------------------------------

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name string
		auth string
		want string
	}{
		{"valid bearer", "Bearer my-token-123", "my-token-123"},
		{"empty header", "", ""},
		{"just Bearer", "Bearer ", ""},
		{"no space", "Bearertoken", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"short token", "Bearer abc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			got := extractBearerToken(req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
