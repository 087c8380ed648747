package bridge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/oauth"
)

const authTestServer = "https://mcp.example"

func TestNewAuthCoordinator_MissingCredentialsRefused(t *testing.T) {
	keyring.MockInit()

	_, err := NewAuthCoordinator(authTestServer, "default", nil, nil)
	if !errkind.Is(err, errkind.Auth) {
		t.Fatalf("kind = %v, want auth (%v)", errkind.Of(err), err)
	}
}

func TestAuthRoundTripper_InjectsBearerAndHeaders(t *testing.T) {
	keyring.MockInit()
	if err := oauth.SaveClientInfo(authTestServer, "default", &oauth.ClientInfo{ClientID: "cid"}); err != nil {
		t.Fatal(err)
	}
	if err := oauth.SaveTokens(authTestServer, "default", &oauth.TokenSet{
		AccessToken: "tok-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	var gotAuth, gotTeam string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTeam = r.Header.Get("X-Team")
	}))
	defer srv.Close()

	auth, err := NewAuthCoordinator(authTestServer, "default", map[string]string{"X-Team": "core"}, nil)
	if err != nil {
		t.Fatalf("NewAuthCoordinator: %v", err)
	}

	client := &http.Client{Transport: auth.RoundTripper(nil)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotTeam != "core" {
		t.Errorf("X-Team = %q", gotTeam)
	}
}

func TestAuthCoordinator_UpdateCredentialsOverridesToken(t *testing.T) {
	keyring.MockInit()
	if err := oauth.SaveClientInfo(authTestServer, "default", &oauth.ClientInfo{ClientID: "cid"}); err != nil {
		t.Fatal(err)
	}
	if err := oauth.SaveTokens(authTestServer, "default", &oauth.TokenSet{
		AccessToken: "stored",
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	auth, err := NewAuthCoordinator(authTestServer, "default", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	auth.UpdateCredentials(nil, "pushed")

	client := &http.Client{Transport: auth.RoundTripper(nil)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer pushed" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestAuthCoordinator_HeaderOnlyNoOAuth(t *testing.T) {
	auth, err := NewAuthCoordinator(authTestServer, "", map[string]string{"X-Api-Key": "k"}, nil)
	if err != nil {
		t.Fatalf("NewAuthCoordinator: %v", err)
	}
	if auth.HasOAuth() {
		t.Error("HasOAuth = true without a profile")
	}
}
