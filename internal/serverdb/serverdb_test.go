package serverdb

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/simon-b/atuin/internal/syncproto"
)

func newTestDB(t *testing.T) *ServerDB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestUser(t *testing.T, db *ServerDB, username string) *User {
	t.Helper()
	u, err := db.RegisterUser(username, username+"@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	return u
}

func testEnvelope(id string) *syncproto.EnvelopeInput {
	return &syncproto.EnvelopeInput{
		ID:          id,
		HostIDToken: "9f2c4ab1d0e3f567",
		Ciphertext:  []byte("ciphertext-" + id),
		Nonce:       bytes.Repeat([]byte{0x02}, syncproto.NonceLen),
		Version:     "v1",
	}
}

// --- User tests ---

func TestRegisterUser(t *testing.T) {
	db := newTestDB(t)
	u, err := db.RegisterUser("Alice", "Alice@Example.COM", "hunter2hunter2")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if u.Username != "alice" || u.Email != "alice@example.com" {
		t.Errorf("identity not lowercased: %s / %s", u.Username, u.Email)
	}
	if !strings.HasPrefix(u.ID, "u_") {
		t.Errorf("unexpected id prefix: %s", u.ID)
	}
}

func TestRegisterUserDuplicate(t *testing.T) {
	db := newTestDB(t)
	newTestUser(t, db, "alice")
	_, err := db.RegisterUser("alice", "other@example.com", "hunter2hunter2")
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate register error = %v, want ErrUserExists", err)
	}
}

func TestRegisterUserShortPassword(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.RegisterUser("bob", "bob@example.com", "short"); err == nil {
		t.Error("short password accepted")
	}
}

func TestAuthenticateUser(t *testing.T) {
	db := newTestDB(t)
	newTestUser(t, db, "alice")

	u, err := db.AuthenticateUser("alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("authenticated wrong user: %s", u.Username)
	}

	if _, err := db.AuthenticateUser("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := db.AuthenticateUser("nobody", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

// --- Session tests ---

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "alice")

	key, s, err := db.CreateSession(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !strings.HasPrefix(key, "atuin_sess_") {
		t.Errorf("unexpected key prefix: %s", key[:12])
	}
	if s.UserID != u.ID {
		t.Errorf("session user = %s, want %s", s.UserID, u.ID)
	}

	gotSession, gotUser, err := db.VerifySession(key)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if gotSession == nil || gotUser == nil {
		t.Fatal("valid session not recognized")
	}
	if gotUser.ID != u.ID {
		t.Errorf("session resolved to %s, want %s", gotUser.ID, u.ID)
	}
	if gotSession.LastUsedAt == nil {
		t.Error("last_used_at not updated on verify")
	}

	if err := db.RevokeSession(key); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	gotSession, _, err = db.VerifySession(key)
	if err != nil {
		t.Fatalf("verify after revoke: %v", err)
	}
	if gotSession != nil {
		t.Error("revoked session still verifies")
	}
}

func TestVerifySessionUnknownKey(t *testing.T) {
	db := newTestDB(t)
	s, u, err := db.VerifySession("atuin_sess_notarealkey")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if s != nil || u != nil {
		t.Error("bogus key verified")
	}
}

// --- History storage tests ---

func TestUpsertAllocatesSequence(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "alice")

	for _, id := range []string{"id1", "id2", "id3"} {
		if err := db.Upsert(u.ID, testEnvelope(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	recs, hasMore, err := db.PageSince(u.ID, 0, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if hasMore {
		t.Error("has_more set on final page")
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, r := range recs {
		if r.GlobalSeq != int64(i+1) {
			t.Errorf("record %d has seq %d, want %d", i, r.GlobalSeq, i+1)
		}
	}
}

func TestUpsertIdempotent(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "alice")

	env := testEnvelope("id1")
	if err := db.Upsert(u.ID, env); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.Upsert(u.ID, env); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	count, err := db.Count(u.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// The duplicate must not have consumed a sequence number
	if err := db.Upsert(u.ID, testEnvelope("id2")); err != nil {
		t.Fatalf("upsert id2: %v", err)
	}
	max, err := db.MaxGlobalSeq(u.ID)
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if max != 2 {
		t.Errorf("max seq = %d, want 2", max)
	}
}

func TestUpsertTombstoneTransitionKeepsSeq(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "alice")

	if err := db.Upsert(u.ID, testEnvelope("id1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.Upsert(u.ID, testEnvelope("id2")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tombstone := testEnvelope("id1")
	tombstone.Ciphertext = []byte("tombstone-ciphertext")
	if err := db.Upsert(u.ID, tombstone); err != nil {
		t.Fatalf("tombstone upsert: %v", err)
	}

	recs, _, err := db.PageSince(u.ID, 0, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].ID != "id1" || recs[0].GlobalSeq != 1 {
		t.Errorf("transitioned record at seq %d, want original 1", recs[0].GlobalSeq)
	}
	if !bytes.Equal(recs[0].Ciphertext, tombstone.Ciphertext) {
		t.Error("ciphertext not updated by tombstone transition")
	}
	if max, _ := db.MaxGlobalSeq(u.ID); max != 2 {
		t.Errorf("max seq = %d after transition, want 2", max)
	}
}

func TestPageSincePagination(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "alice")

	for _, id := range []string{"id1", "id2", "id3"} {
		if err := db.Upsert(u.ID, testEnvelope(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	page1, hasMore, err := db.PageSince(u.ID, 0, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if !hasMore {
		t.Error("has_more not set on full page")
	}
	if len(page1) != 2 || page1[0].ID != "id1" || page1[1].ID != "id2" {
		t.Fatalf("page 1 wrong: %+v", page1)
	}

	page2, hasMore, err := db.PageSince(u.ID, page1[1].GlobalSeq, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "id3" {
		t.Fatalf("page 2 wrong: %+v", page2)
	}
	// A page that exactly fills the limit reports has_more; the next
	// request comes back empty. Correct, just one extra round trip.
	if hasMore {
		empty, more, err := db.PageSince(u.ID, page2[0].GlobalSeq, 2)
		if err != nil || len(empty) != 0 || more {
			t.Fatalf("trailing page not empty: %v %v %v", empty, more, err)
		}
	}
}

func TestPageSinceContiguousAcrossPages(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "alice")

	for i := 0; i < 25; i++ {
		if err := db.Upsert(u.ID, testEnvelope(fmt.Sprintf("id%02d", i))); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	var seen []int64
	var since int64
	for {
		recs, hasMore, err := db.PageSince(u.ID, since, 7)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		for _, r := range recs {
			seen = append(seen, r.GlobalSeq)
			since = r.GlobalSeq
		}
		if !hasMore {
			break
		}
	}

	if len(seen) != 25 {
		t.Fatalf("saw %d seqs, want 25", len(seen))
	}
	for i, seq := range seen {
		if seq != int64(i+1) {
			t.Fatalf("seq sequence not contiguous at %d: got %d", i, seq)
		}
	}
}

func TestAccountIsolation(t *testing.T) {
	db := newTestDB(t)
	alice := newTestUser(t, db, "alice")
	bob := newTestUser(t, db, "bob")

	if err := db.Upsert(alice.ID, testEnvelope("a1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.Upsert(bob.ID, testEnvelope("b1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Sequences are per account, both start at 1
	aMax, _ := db.MaxGlobalSeq(alice.ID)
	bMax, _ := db.MaxGlobalSeq(bob.ID)
	if aMax != 1 || bMax != 1 {
		t.Errorf("per-account seqs = %d/%d, want 1/1", aMax, bMax)
	}

	recs, _, err := db.PageSince(alice.ID, 0, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "a1" {
		t.Errorf("alice sees foreign records: %+v", recs)
	}
}

func TestDeleteAccountData(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "alice")

	if err := db.Upsert(u.ID, testEnvelope("id1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.DeleteAccountData(u.ID); err != nil {
		t.Fatalf("delete account data: %v", err)
	}
	count, _ := db.Count(u.ID)
	if count != 0 {
		t.Errorf("count = %d after account wipe, want 0", count)
	}
	if err := db.DeleteUser(u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	got, err := db.GetUserByID(u.ID)
	if err != nil || got != nil {
		t.Errorf("user still present after delete: %v %v", got, err)
	}
}
