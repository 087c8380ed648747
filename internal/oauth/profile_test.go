package oauth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/hedworth/mcpc/internal/errkind"
)

func newTestProfileStore(t *testing.T) *ProfileStore {
	t.Helper()
	return NewProfileStore(filepath.Join(t.TempDir(), "profiles.json"))
}

func TestProfileStore_PutGetList(t *testing.T) {
	s := newTestProfileStore(t)

	for _, name := range []string{"work", "default"} {
		err := s.Put(Profile{Name: name, ServerURL: testServer, CreatedAt: time.Now()})
		if err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}

	got, err := s.Get(testServer, "work")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "work" || got.ServerURL != testServer {
		t.Errorf("profile = %+v", got)
	}

	all, err := s.List(testServer)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Name != "default" || all[1].Name != "work" {
		t.Errorf("List = %+v", all)
	}
}

func TestProfileStore_GetMissingIsAuthError(t *testing.T) {
	s := newTestProfileStore(t)

	_, err := s.Get(testServer, "nope")
	if !errkind.Is(err, errkind.Auth) {
		t.Fatalf("kind = %v, want auth (%v)", errkind.Of(err), err)
	}
}

func TestProfileStore_StampRefreshed(t *testing.T) {
	s := newTestProfileStore(t)
	if err := s.Put(Profile{Name: "default", ServerURL: testServer, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	at := time.Now().Round(time.Second)
	if err := s.StampRefreshed(testServer, "default", at); err != nil {
		t.Fatalf("StampRefreshed: %v", err)
	}

	got, err := s.Get(testServer, "default")
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastRefreshedAt.Equal(at) {
		t.Errorf("LastRefreshedAt = %v, want %v", got.LastRefreshedAt, at)
	}

	// Stamping an unknown profile is a no-op, not an error.
	if err := s.StampRefreshed(testServer, "ghost", at); err != nil {
		t.Errorf("StampRefreshed ghost: %v", err)
	}
}

func TestProfileStore_DeleteRemovesKeychainRecords(t *testing.T) {
	keyring.MockInit()
	s := newTestProfileStore(t)

	if err := s.Put(Profile{Name: "default", ServerURL: testServer, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := SaveTokens(testServer, "default", &TokenSet{AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := SaveClientInfo(testServer, "default", &ClientInfo{ClientID: "cid"}); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(testServer, "default"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.Get(testServer, "default"); err == nil {
		t.Error("profile still present after delete")
	}
	if _, err := LoadTokens(testServer, "default"); !errkind.Is(err, errkind.Auth) {
		t.Errorf("tokens still present after delete: %v", err)
	}

	// Deleting a missing profile reports a client error.
	if err := s.Delete(testServer, "default"); !errkind.Is(err, errkind.Client) {
		t.Errorf("second delete: %v", err)
	}
}
