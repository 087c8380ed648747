package keychain

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestSetGetDelete(t *testing.T) {
	keyring.MockInit()

	if err := Set("session:@s:headers", `{"X-Team":"core"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := Get("session:@s:headers")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != `{"X-Team":"core"}` {
		t.Errorf("Get = %q", v)
	}

	if err := Delete("session:@s:headers"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := Get("session:@s:headers"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteMissingIsNil(t *testing.T) {
	keyring.MockInit()

	if err := Delete("no-such-key"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	keyring.MockInit()

	type clientInfo struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret,omitempty"`
	}

	key := ProfileClientKey("https://srv.example", "default")
	if err := SetJSON(key, clientInfo{ClientID: "abc"}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got clientInfo
	if err := GetJSON(key, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.ClientID != "abc" {
		t.Errorf("ClientID = %q", got.ClientID)
	}
}

func TestKeyShapes(t *testing.T) {
	if got := ProfileTokenKey("https://srv.example", "work"); got != "profile:https://srv.example:work:tokens" {
		t.Errorf("ProfileTokenKey = %q", got)
	}
	if got := SessionHeadersKey("@work"); got != "session:@work:headers" {
		t.Errorf("SessionHeadersKey = %q", got)
	}
}
