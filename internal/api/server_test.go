package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/simon-b/atuin/internal/serverdb"
	"github.com/simon-b/atuin/internal/syncproto"
)

func newTestServer(t *testing.T) (*httptest.Server, *serverdb.ServerDB) {
	t.Helper()
	store, err := serverdb.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := LoadConfig()
	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func doJSON(t *testing.T, method, url, session string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func registerTestUser(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	resp := doJSON(t, "POST", ts.URL+"/register", "", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct-horse-battery",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	return decode[SessionResponse](t, resp).Session
}

func wireEnvelope(id string) syncproto.EnvelopeInput {
	return syncproto.EnvelopeInput{
		ID:          id,
		HostIDToken: "9f2c4ab1d0e3f567",
		Ciphertext:  []byte("ciphertext-" + id),
		Nonce:       bytes.Repeat([]byte{0x03}, syncproto.NonceLen),
		Version:     "v1",
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ts, _ := newTestServer(t)

	session := registerTestUser(t, ts, "alice")
	if session == "" {
		t.Fatal("empty session from register")
	}

	// Duplicate registration conflicts
	resp := doJSON(t, "POST", ts.URL+"/register", "", RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "correct-horse-battery",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}

	resp = doJSON(t, "POST", ts.URL+"/login", "", LoginRequest{Username: "alice", Password: "correct-horse-battery"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	login := decode[SessionResponse](t, resp)
	if login.Session == "" || login.Session == session {
		t.Error("login did not issue a fresh session key")
	}

	resp = doJSON(t, "POST", ts.URL+"/login", "", LoginRequest{Username: "alice", Password: "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", resp.StatusCode)
	}
}

func TestHistoryRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, "GET", ts.URL+"/history", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated pull status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/history", "atuin_sess_bogus", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bogus session status = %d, want 401", resp.StatusCode)
	}
}

func TestPushPullCount(t *testing.T) {
	ts, _ := newTestServer(t)
	session := registerTestUser(t, ts, "alice")

	push := syncproto.PushRequest{Records: []syncproto.EnvelopeInput{
		wireEnvelope("id1"), wireEnvelope("id2"), wireEnvelope("id3"),
	}}
	resp := doJSON(t, "POST", ts.URL+"/history", session, push)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("push status = %d", resp.StatusCode)
	}
	ack := decode[syncproto.PushResponse](t, resp)
	if len(ack.AckedIDs) != 3 {
		t.Fatalf("acked %d ids, want 3", len(ack.AckedIDs))
	}

	// Re-push is idempotent
	resp = doJSON(t, "POST", ts.URL+"/history", session, push)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-push status = %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/history/count", session, nil)
	count := decode[syncproto.CountResponse](t, resp)
	if count.Count != 3 {
		t.Errorf("count = %d, want 3", count.Count)
	}

	// Paged pull: 3 records, limit 2
	resp = doJSON(t, "GET", fmt.Sprintf("%s/history?since=0&limit=2", ts.URL), session, nil)
	page1 := decode[syncproto.PullResponse](t, resp)
	if len(page1.Records) != 2 || !page1.HasMore {
		t.Fatalf("page 1 = %d records, has_more=%v", len(page1.Records), page1.HasMore)
	}
	if page1.Records[0].ID != "id1" || page1.Records[1].ID != "id2" {
		t.Errorf("page 1 ids wrong: %s, %s", page1.Records[0].ID, page1.Records[1].ID)
	}
	if page1.MaxGlobalSeq != 3 {
		t.Errorf("max_global_seq = %d, want 3", page1.MaxGlobalSeq)
	}

	since := page1.Records[1].GlobalSeq
	resp = doJSON(t, "GET", fmt.Sprintf("%s/history?since=%d&limit=2", ts.URL, since), session, nil)
	page2 := decode[syncproto.PullResponse](t, resp)
	if len(page2.Records) != 1 || page2.Records[0].ID != "id3" || page2.HasMore {
		t.Fatalf("page 2 wrong: %d records, has_more=%v", len(page2.Records), page2.HasMore)
	}
}

func TestPushRejectsMalformed(t *testing.T) {
	ts, _ := newTestServer(t)
	session := registerTestUser(t, ts, "alice")

	bad := wireEnvelope("id1")
	bad.Nonce = bad.Nonce[:4]
	resp := doJSON(t, "POST", ts.URL+"/history", session, syncproto.PushRequest{
		Records: []syncproto.EnvelopeInput{bad},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed push status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, "POST", ts.URL+"/history", session, syncproto.PushRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty push status = %d, want 400", resp.StatusCode)
	}
}

func TestAccountsAreIsolated(t *testing.T) {
	ts, _ := newTestServer(t)
	alice := registerTestUser(t, ts, "alice")
	bob := registerTestUser(t, ts, "bob")

	resp := doJSON(t, "POST", ts.URL+"/history", alice, syncproto.PushRequest{
		Records: []syncproto.EnvelopeInput{wireEnvelope("a1")},
	})
	resp.Body.Close()

	resp = doJSON(t, "GET", ts.URL+"/history?since=0", bob, nil)
	pull := decode[syncproto.PullResponse](t, resp)
	if len(pull.Records) != 0 {
		t.Errorf("bob pulled %d of alice's records", len(pull.Records))
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	ts, _ := newTestServer(t)
	session := registerTestUser(t, ts, "alice")

	resp := doJSON(t, "POST", ts.URL+"/logout", session, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/history", session, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("revoked session status = %d, want 401", resp.StatusCode)
	}
}

func TestDeleteAccount(t *testing.T) {
	ts, store := newTestServer(t)
	session := registerTestUser(t, ts, "alice")

	resp := doJSON(t, "POST", ts.URL+"/history", session, syncproto.PushRequest{
		Records: []syncproto.EnvelopeInput{wireEnvelope("id1")},
	})
	resp.Body.Close()

	resp = doJSON(t, "DELETE", ts.URL+"/account", session, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete account status = %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/history", session, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("session alive after account delete: %d", resp.StatusCode)
	}

	s, u, err := store.VerifySession(session)
	if err != nil || s != nil || u != nil {
		t.Errorf("store still resolves deleted account's session: %v %v %v", s, u, err)
	}
}

// brokenStore satisfies serverdb.Store and fails every call, standing in
// for a backend outage behind the storage contract.
type brokenStore struct{}

func (brokenStore) Upsert(string, *syncproto.EnvelopeInput) error { return errors.New("backend down") }
func (brokenStore) PageSince(string, int64, int) ([]syncproto.SyncedRecord, bool, error) {
	return nil, false, errors.New("backend down")
}
func (brokenStore) MaxGlobalSeq(string) (int64, error) { return 0, errors.New("backend down") }
func (brokenStore) Count(string) (int64, error)        { return 0, errors.New("backend down") }
func (brokenStore) DeleteAccountData(string) error     { return errors.New("backend down") }

func TestHistoryHandlersUseStorageContract(t *testing.T) {
	store, err := serverdb.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv, err := NewServer(LoadConfig(), store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.history = brokenStore{}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	// Auth still runs on the real store
	session := registerTestUser(t, ts, "contract")

	push := doJSON(t, "POST", ts.URL+"/history", session, syncproto.PushRequest{
		Records: []syncproto.EnvelopeInput{wireEnvelope("rec-1")},
	})
	push.Body.Close()
	if push.StatusCode != http.StatusInternalServerError {
		t.Errorf("push status with broken storage = %d, want 500", push.StatusCode)
	}

	count := doJSON(t, "GET", ts.URL+"/history/count", session, nil)
	count.Body.Close()
	if count.StatusCode != http.StatusInternalServerError {
		t.Errorf("count status with broken storage = %d, want 500", count.StatusCode)
	}
}
