package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUpstashSnapshotStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashSnapshotStore{}
	got, err := store.redisKey("abc")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "rentalgenie:session:abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "rentalgenie:session:abc")
	}

	if _, err := store.redisKey("   "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("redisKey(blank) error = %v, want ErrInvalidSession", err)
	}
}

func TestUpstashSnapshotStoreSave(t *testing.T) {
	t.Parallel()

	const wantKey = "rentalgenie:session:s1"
	var gotCommand []any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashSnapshotStore(
		UpstashConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
		WithTTL(0),
	)
	if err != nil {
		t.Fatalf("NewUpstashSnapshotStore() error = %v", err)
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		Session: *newConversationSession("s1", PlatformWeb, "u1", now),
		Profile: *newTenantProfile("s1", now),
	}
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if len(gotCommand) != 3 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[1] != wantKey {
		t.Fatalf("command = %v %v, want SET %s", gotCommand[0], gotCommand[1], wantKey)
	}
}

func TestUpstashSnapshotStoreLoad(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	seed := &Snapshot{
		Session: *newConversationSession("s2", PlatformTelegram, "u2", now),
		Profile: *newTenantProfile("s2", now),
	}
	payload, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal encoded seed: %v", err)
	}

	var gotCommand []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashSnapshotStore(
		UpstashConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashSnapshotStore() error = %v", err)
	}

	snap, err := store.Load(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.Session.SessionID != "s2" || snap.Session.Platform != PlatformTelegram {
		t.Fatalf("Load() session = %+v", snap.Session)
	}
	if gotCommand[0] != "GET" || gotCommand[1] != "rentalgenie:session:s2" {
		t.Fatalf("command = %v", gotCommand)
	}
}

func TestUpstashSnapshotStoreLoadMissing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashSnapshotStore(
		UpstashConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashSnapshotStore() error = %v", err)
	}

	if _, err := store.Load(context.Background(), "ghost"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestUpstashSnapshotStoreDelete(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":1}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashSnapshotStore(
		UpstashConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashSnapshotStore() error = %v", err)
	}

	if err := store.Delete(context.Background(), "s3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gotCommand[0] != "DEL" || gotCommand[1] != "rentalgenie:session:s3" {
		t.Fatalf("command = %v", gotCommand)
	}
}
