package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/db/sqlite"
	"github.com/ebrangerieau/BandtrackPlus/internal/httpapi"
	"github.com/ebrangerieau/BandtrackPlus/internal/migrate"
	"github.com/ebrangerieau/BandtrackPlus/internal/store"

	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := sqlite.Open(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := migrate.Run(context.Background(), a, migrate.Options{AdminPassword: "bootstrap-secret"}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(a)
	sessions := auth.NewSessions(a, 0)
	resolver := auth.NewResolver(sessions, a)
	gate := auth.NewGate(a)
	handler := httpapi.NewHandler(st, sessions, resolver, gate, zap.NewNop(), false)

	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func do(t *testing.T, client *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func register(t *testing.T, client *http.Client, base, username string) map[string]any {
	t.Helper()
	var user map[string]any
	status := do(t, client, http.MethodPost, base+"/api/register",
		map[string]string{"username": username, "password": "password"}, &user)
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}
	return user
}

func TestRegisterLoginLogoutCycle(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)

	register(t, alice, srv.URL, "alice")

	var me map[string]any
	if status := do(t, alice, http.MethodGet, srv.URL+"/api/me", nil, &me); status != http.StatusOK {
		t.Fatalf("me: status %d", status)
	}
	if me["username"] != "alice" {
		t.Fatalf("me = %v", me)
	}

	if status := do(t, alice, http.MethodPost, srv.URL+"/api/logout", nil, nil); status != http.StatusOK {
		t.Fatalf("logout: status %d", status)
	}
	if status := do(t, alice, http.MethodGet, srv.URL+"/api/me", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d, want 401", status)
	}

	if status := do(t, alice, http.MethodPost, srv.URL+"/api/login",
		map[string]string{"username": "alice", "password": "password"}, nil); status != http.StatusOK {
		t.Fatalf("login: status %d", status)
	}
	if status := do(t, alice, http.MethodGet, srv.URL+"/api/me", nil, nil); status != http.StatusOK {
		t.Fatalf("me after login: status %d", status)
	}
}

func TestAnonymousRequestsRejected(t *testing.T) {
	srv := newTestServer(t)
	client := &http.Client{}

	var errResp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if status := do(t, client, http.MethodGet, srv.URL+"/api/suggestions", nil, &errResp); status != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", status)
	}
	if errResp.Error.Code != "unauthorized" {
		t.Fatalf("error code %q", errResp.Error.Code)
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	srv := newTestServer(t)
	register(t, newClient(t), srv.URL, "alice")

	status := do(t, newClient(t), http.MethodPost, srv.URL+"/api/register",
		map[string]string{"username": "Alice", "password": "password"}, nil)
	if status != http.StatusConflict {
		t.Fatalf("duplicate register: status %d, want 409", status)
	}
}

// Two groups, two users: resources stay inside their group, the session
// binding follows explicit context switches, and a path group id overrides
// the binding for a single request without moving it.
func TestTwoGroupIsolation(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)
	bob := newClient(t)

	aliceUser := register(t, alice, srv.URL, "alice")
	register(t, bob, srv.URL, "bob")
	defaultGroup := int64(aliceUser["groupId"].(float64))

	var sg map[string]any
	if status := do(t, alice, http.MethodPost, srv.URL+"/api/suggestions",
		map[string]string{"title": "Karma Police"}, &sg); status != http.StatusCreated {
		t.Fatalf("create suggestion: status %d", status)
	}

	var side map[string]any
	if status := do(t, alice, http.MethodPost, srv.URL+"/api/groups",
		map[string]string{"name": "Side Project"}, &side); status != http.StatusCreated {
		t.Fatalf("create group: status %d", status)
	}
	sideID := int64(side["id"].(float64))

	// Creating the group switched alice's session binding to it.
	var list []map[string]any
	if status := do(t, alice, http.MethodGet, srv.URL+"/api/suggestions", nil, &list); status != http.StatusOK {
		t.Fatalf("list in side group: status %d", status)
	}
	if len(list) != 0 {
		t.Fatalf("side group sees %d suggestions from the default group", len(list))
	}

	// Path override reads the default group without rebinding the session.
	overrideURL := fmt.Sprintf("%s/api/%d/suggestions", srv.URL, defaultGroup)
	if status := do(t, alice, http.MethodGet, overrideURL, nil, &list); status != http.StatusOK {
		t.Fatalf("override list: status %d", status)
	}
	if len(list) != 1 || list[0]["title"] != "Karma Police" {
		t.Fatalf("override list = %v", list)
	}
	var ctxResp map[string]any
	if status := do(t, alice, http.MethodGet, srv.URL+"/api/context", nil, &ctxResp); status != http.StatusOK {
		t.Fatalf("context: status %d", status)
	}
	group := ctxResp["group"].(map[string]any)
	if int64(group["id"].(float64)) != sideID {
		t.Fatalf("session binding moved to %v after path override", group["id"])
	}

	// Bob is not a member of the side project.
	bobOverride := fmt.Sprintf("%s/api/%d/suggestions", srv.URL, sideID)
	if status := do(t, bob, http.MethodGet, bobOverride, nil, nil); status != http.StatusForbidden {
		t.Fatalf("bob in side group: status %d, want 403", status)
	}

	// Joining by code grants access as a plain member.
	if status := do(t, bob, http.MethodPost, srv.URL+"/api/groups/join",
		map[string]string{"code": side["invitation_code"].(string)}, nil); status != http.StatusOK {
		t.Fatalf("bob join: status %d", status)
	}
	if status := do(t, bob, http.MethodGet, srv.URL+"/api/suggestions", nil, &list); status != http.StatusOK {
		t.Fatalf("bob list after join: status %d", status)
	}

	// Admin-only operations stay closed to plain members.
	if status := do(t, bob, http.MethodPost, srv.URL+"/api/groups/renew-code", nil, nil); status != http.StatusForbidden {
		t.Fatalf("bob renew-code: status %d, want 403", status)
	}
	if status := do(t, alice, http.MethodPost, srv.URL+"/api/groups/renew-code", nil, nil); status != http.StatusOK {
		t.Fatalf("alice renew-code: status %d", status)
	}
}

func TestExplicitContextSwitch(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)

	user := register(t, alice, srv.URL, "alice")
	defaultGroup := int64(user["groupId"].(float64))

	var side map[string]any
	if status := do(t, alice, http.MethodPost, srv.URL+"/api/groups",
		map[string]string{"name": "Side Project"}, &side); status != http.StatusCreated {
		t.Fatalf("create group: status %d", status)
	}

	if status := do(t, alice, http.MethodPost, srv.URL+"/api/context",
		map[string]int64{"groupId": defaultGroup}, nil); status != http.StatusOK {
		t.Fatalf("switch back: status %d", status)
	}
	var ctxResp map[string]any
	if status := do(t, alice, http.MethodGet, srv.URL+"/api/context", nil, &ctxResp); status != http.StatusOK {
		t.Fatalf("context: status %d", status)
	}
	group := ctxResp["group"].(map[string]any)
	if int64(group["id"].(float64)) != defaultGroup {
		t.Fatalf("context = %v, want default group", group["id"])
	}

	// Switching into a group without membership is refused.
	if status := do(t, alice, http.MethodPost, srv.URL+"/api/context",
		map[string]int64{"groupId": 9999}, nil); status != http.StatusForbidden {
		t.Fatalf("switch to foreign group: status %d, want 403", status)
	}
}

func TestRehearsalLevelIsPerMember(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)
	bob := newClient(t)
	register(t, alice, srv.URL, "alice")
	register(t, bob, srv.URL, "bob")

	var re map[string]any
	if status := do(t, alice, http.MethodPost, srv.URL+"/api/rehearsals",
		map[string]string{"title": "Creep"}, &re); status != http.StatusCreated {
		t.Fatalf("create rehearsal: status %d", status)
	}
	id := int64(re["id"].(float64))

	url := fmt.Sprintf("%s/api/rehearsals/%d/level", srv.URL, id)
	if status := do(t, alice, http.MethodPut, url, map[string]int{"level": 75}, &re); status != http.StatusOK {
		t.Fatalf("alice level: status %d", status)
	}
	if status := do(t, bob, http.MethodPut, url, map[string]int{"level": 20}, &re); status != http.StatusOK {
		t.Fatalf("bob level: status %d", status)
	}

	levels := re["levels"].(map[string]any)
	if levels["alice"].(float64) != 75 || levels["bob"].(float64) != 20 {
		t.Fatalf("levels = %v", levels)
	}

	// Mastered is moderator territory; bob is a plain member.
	masteredURL := fmt.Sprintf("%s/api/rehearsals/%d/mastered", srv.URL, id)
	if status := do(t, bob, http.MethodPut, masteredURL, map[string]bool{"mastered": true}, nil); status != http.StatusForbidden {
		t.Fatalf("bob mastered: status %d, want 403", status)
	}
	if status := do(t, alice, http.MethodPut, masteredURL, map[string]bool{"mastered": true}, &re); status != http.StatusOK {
		t.Fatalf("alice mastered: status %d", status)
	}
	if re["mastered"] != true {
		t.Fatalf("mastered = %v", re["mastered"])
	}
}

func TestVoteEndpoint(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)
	bob := newClient(t)
	register(t, alice, srv.URL, "alice")
	register(t, bob, srv.URL, "bob")

	var sg map[string]any
	if status := do(t, alice, http.MethodPost, srv.URL+"/api/suggestions",
		map[string]string{"title": "Song"}, &sg); status != http.StatusCreated {
		t.Fatalf("create: status %d", status)
	}
	voteURL := fmt.Sprintf("%s/api/suggestions/%d/vote", srv.URL, int64(sg["id"].(float64)))

	if status := do(t, bob, http.MethodPost, voteURL, nil, &sg); status != http.StatusOK {
		t.Fatalf("vote: status %d", status)
	}
	if sg["likes"].(float64) != 1 {
		t.Fatalf("likes = %v", sg["likes"])
	}
	if status := do(t, bob, http.MethodDelete, voteURL, nil, &sg); status != http.StatusOK {
		t.Fatalf("unvote: status %d", status)
	}
	if sg["likes"].(float64) != 0 {
		t.Fatalf("likes after unvote = %v", sg["likes"])
	}
}

func login(t *testing.T, client *http.Client, base, username, password string) {
	t.Helper()
	if status := do(t, client, http.MethodPost, base+"/api/login",
		map[string]string{"username": username, "password": password}, nil); status != http.StatusOK {
		t.Fatalf("login %s: status %d", username, status)
	}
}

// A plain member can edit and delete what they created; other plain
// members cannot touch it.
func TestCreatorEditsOwnResources(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)
	bob := newClient(t)
	carol := newClient(t)
	register(t, alice, srv.URL, "alice")
	register(t, bob, srv.URL, "bob")
	register(t, carol, srv.URL, "carol")

	var re map[string]any
	if status := do(t, bob, http.MethodPost, srv.URL+"/api/rehearsals",
		map[string]string{"title": "Creep"}, &re); status != http.StatusCreated {
		t.Fatalf("create rehearsal: status %d", status)
	}
	reURL := fmt.Sprintf("%s/api/rehearsals/%d", srv.URL, int64(re["id"].(float64)))

	if status := do(t, bob, http.MethodPut, reURL,
		map[string]string{"title": "Creep (acoustic)"}, nil); status != http.StatusOK {
		t.Fatalf("creator edit own rehearsal: status %d, want 200", status)
	}
	if status := do(t, carol, http.MethodPut, reURL,
		map[string]string{"title": "Hijacked"}, nil); status != http.StatusForbidden {
		t.Fatalf("non-creator edit: status %d, want 403", status)
	}

	var perf map[string]any
	if status := do(t, bob, http.MethodPost, srv.URL+"/api/performances",
		map[string]any{"name": "Gig", "date": "2026-09-01", "songs": []int64{}}, &perf); status != http.StatusCreated {
		t.Fatalf("create performance: status %d", status)
	}
	perfURL := fmt.Sprintf("%s/api/performances/%d", srv.URL, int64(perf["id"].(float64)))

	if status := do(t, bob, http.MethodPut, perfURL,
		map[string]any{"name": "Gig", "date": "2026-09-02", "songs": []int64{}}, nil); status != http.StatusOK {
		t.Fatalf("creator edit own performance: status %d, want 200", status)
	}
	if status := do(t, carol, http.MethodDelete, perfURL, nil, nil); status != http.StatusForbidden {
		t.Fatalf("non-creator delete performance: status %d, want 403", status)
	}
	if status := do(t, bob, http.MethodDelete, perfURL, nil, nil); status != http.StatusOK {
		t.Fatalf("creator delete own performance: status %d", status)
	}

	// Moderators and above still reach other members' resources.
	if status := do(t, alice, http.MethodDelete, reURL, nil, nil); status != http.StatusOK {
		t.Fatalf("admin delete rehearsal: status %d", status)
	}
}

// The audit trail spans every group, so a band admin does not see it; only
// the installation admin does.
func TestLogsRequireGlobalAdmin(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)
	register(t, alice, srv.URL, "alice")

	if status := do(t, alice, http.MethodGet, srv.URL+"/api/logs", nil, nil); status != http.StatusForbidden {
		t.Fatalf("band admin reads logs: status %d, want 403", status)
	}

	admin := newClient(t)
	login(t, admin, srv.URL, "admin", "bootstrap-secret")

	var entries []map[string]any
	if status := do(t, admin, http.MethodGet, srv.URL+"/api/logs", nil, &entries); status != http.StatusOK {
		t.Fatalf("global admin reads logs: status %d", status)
	}
	if len(entries) == 0 {
		t.Fatal("no audit entries after registration and logins")
	}

	if status := do(t, admin, http.MethodGet, srv.URL+"/api/logs?limit=abc", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("garbage limit: status %d, want 400", status)
	}
}

func TestAdminManagesUserRoles(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)
	aliceUser := register(t, alice, srv.URL, "alice")
	aliceID := int64(aliceUser["id"].(float64))

	if status := do(t, alice, http.MethodGet, srv.URL+"/api/users", nil, nil); status != http.StatusForbidden {
		t.Fatalf("non-admin lists users: status %d, want 403", status)
	}

	admin := newClient(t)
	login(t, admin, srv.URL, "admin", "bootstrap-secret")

	var users []map[string]any
	if status := do(t, admin, http.MethodGet, srv.URL+"/api/users", nil, &users); status != http.StatusOK {
		t.Fatalf("list users: status %d", status)
	}
	found := false
	for _, u := range users {
		if u["username"] == "alice" {
			found = true
		}
	}
	if !found {
		t.Fatalf("alice missing from user list: %v", users)
	}

	roleURL := fmt.Sprintf("%s/api/users/%d", srv.URL, aliceID)
	if status := do(t, admin, http.MethodPut, roleURL,
		map[string]string{"role": "moderator"}, nil); status != http.StatusOK {
		t.Fatalf("promote alice: status %d", status)
	}
	var me map[string]any
	if status := do(t, alice, http.MethodGet, srv.URL+"/api/me", nil, &me); status != http.StatusOK {
		t.Fatalf("me: status %d", status)
	}
	if me["role"] != "moderator" {
		t.Fatalf("alice role = %v, want moderator", me["role"])
	}

	// The acting admin cannot strip their own role.
	var adminUser map[string]any
	if status := do(t, admin, http.MethodGet, srv.URL+"/api/me", nil, &adminUser); status != http.StatusOK {
		t.Fatalf("admin me: status %d", status)
	}
	selfURL := fmt.Sprintf("%s/api/users/%d", srv.URL, int64(adminUser["id"].(float64)))
	if status := do(t, admin, http.MethodPut, selfURL,
		map[string]string{"role": "user"}, nil); status != http.StatusBadRequest {
		t.Fatalf("self demotion: status %d, want 400", status)
	}

	if status := do(t, admin, http.MethodPut, srv.URL+"/api/users/9999",
		map[string]string{"role": "user"}, nil); status != http.StatusNotFound {
		t.Fatalf("unknown user: status %d, want 404", status)
	}
}

func TestLastAdminCannotLeave(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t)
	user := register(t, alice, srv.URL, "alice")
	defaultGroup := int64(user["groupId"].(float64))
	aliceID := int64(user["id"].(float64))

	url := fmt.Sprintf("%s/api/groups/%d/members/%d", srv.URL, defaultGroup, aliceID)
	var errResp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if status := do(t, alice, http.MethodDelete, url, nil, &errResp); status != http.StatusForbidden {
		t.Fatalf("leave as last admin: status %d, want 403", status)
	}
	if errResp.Error.Code != "forbidden" {
		t.Fatalf("error code %q", errResp.Error.Code)
	}
}
