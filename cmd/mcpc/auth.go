package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
	"github.com/hedworth/mcpc/internal/oauth"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/registry"
	"github.com/hedworth/mcpc/internal/session"
)

var (
	authProfile      string
	authClientID     string
	authClientSecret string
	authAccessToken  string
	authRefreshToken string
	authExpiresIn    int
	authScopes       []string
	authIssuer       string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage OAuth credentials for MCP servers",
}

var authSetCmd = &cobra.Command{
	Use:   "set <server-url>",
	Short: "Store OAuth credentials for a server",
	Long: `Store an OAuth client registration and token set for a server. Secrets
go to the OS keychain; profiles.json records only the profile metadata.

Sessions connected to the server with the same profile pick up the new
access token immediately; the bridge refreshes it from then on.

Examples:
  mcpc auth set https://mcp.example.com \
    --client-id abc --client-secret shh \
    --access-token tok --refresh-token rtok --expires-in 3600`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthSet,
}

var authStatusCmd = &cobra.Command{
	Use:   "status <server-url>",
	Short: "Show credential status for a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout <server-url>",
	Short: "Delete stored credentials for a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

func init() {
	for _, c := range []*cobra.Command{authSetCmd, authStatusCmd, authLogoutCmd} {
		c.Flags().StringVar(&authProfile, "profile", oauth.DefaultProfileName, "Profile name")
	}
	authSetCmd.Flags().StringVar(&authClientID, "client-id", "", "OAuth client id")
	authSetCmd.Flags().StringVar(&authClientSecret, "client-secret", "", "OAuth client secret (omit for public clients)")
	authSetCmd.Flags().StringVar(&authAccessToken, "access-token", "", "Current access token")
	authSetCmd.Flags().StringVar(&authRefreshToken, "refresh-token", "", "Refresh token")
	authSetCmd.Flags().IntVar(&authExpiresIn, "expires-in", 3600, "Access token lifetime in seconds")
	authSetCmd.Flags().StringSliceVar(&authScopes, "scopes", nil, "Granted scopes (comma-separated)")
	authSetCmd.Flags().StringVar(&authIssuer, "issuer", "", "OAuth issuer URL (recorded in the profile)")

	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	serverURL, err := config.NormalizeURL(args[0])
	if err != nil {
		return err
	}
	if err := paths.ValidateProfileName(authProfile); err != nil {
		return err
	}
	if authClientID == "" {
		return errkind.New(errkind.Client, "--client-id is required")
	}
	if authAccessToken == "" && authRefreshToken == "" {
		return errkind.New(errkind.Client, "at least one of --access-token or --refresh-token is required")
	}

	if err := oauth.SaveClientInfo(serverURL, authProfile, &oauth.ClientInfo{
		ClientID:     authClientID,
		ClientSecret: authClientSecret,
	}); err != nil {
		return err
	}

	tokens := &oauth.TokenSet{
		AccessToken:  authAccessToken,
		RefreshToken: authRefreshToken,
		TokenType:    "Bearer",
	}
	if authAccessToken != "" && authExpiresIn > 0 {
		tokens.ExpiresAt = time.Now().Add(time.Duration(authExpiresIn) * time.Second)
	}
	if err := oauth.SaveTokens(serverURL, authProfile, tokens); err != nil {
		return err
	}

	home, err := paths.Home()
	if err != nil {
		return err
	}
	profiles := oauth.NewProfileStore(paths.ProfilesFile(home))
	if err := profiles.Put(oauth.Profile{
		Name:            authProfile,
		ServerURL:       serverURL,
		AuthType:        oauth.AuthTypeOAuth,
		OAuthIssuer:     authIssuer,
		Scopes:          authScopes,
		CreatedAt:       time.Now(),
		AuthenticatedAt: time.Now(),
	}); err != nil {
		return err
	}

	pushed := pushCredentials(serverURL, authProfile, authAccessToken)

	if jsonOutput() {
		return printJSON(map[string]any{
			"serverUrl":       serverURL,
			"profile":         authProfile,
			"sessionsUpdated": pushed,
		})
	}
	fmt.Printf("stored credentials for %s (profile %q)\n", serverURL, authProfile)
	if pushed > 0 {
		fmt.Printf("updated %d running session(s)\n", pushed)
	}
	return nil
}

// pushCredentials hands the fresh access token to every live bridge bound
// to the server and profile, so they stop using the stale one without a
// reconnect. Failures are not fatal; the bridge reloads from the keychain
// on its next refresh anyway.
func pushCredentials(serverURL, profile, accessToken string) int {
	if accessToken == "" {
		return 0
	}
	reg, mgr, err := openSession()
	if err != nil {
		return 0
	}
	records, err := reg.List()
	if err != nil {
		return 0
	}

	pushed := 0
	for _, r := range records {
		if r.Server.URL != serverURL || r.ProfileName != profile {
			continue
		}
		if r.ComputedStatus() != registry.StatusLive {
			continue
		}
		c := session.New(r.Name, mgr, nil)
		err := c.SetCredentials(ipc.SetCredentialsParams{AccessToken: accessToken})
		c.Close()
		if err == nil {
			pushed++
		}
	}
	return pushed
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	serverURL, err := config.NormalizeURL(args[0])
	if err != nil {
		return err
	}
	home, err := paths.Home()
	if err != nil {
		return err
	}

	profiles, err := oauth.NewProfileStore(paths.ProfilesFile(home)).List(serverURL)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return errkind.WithHint(
			errkind.New(errkind.Auth, "no credentials stored for %s", serverURL),
			"run: mcpc auth set "+serverURL)
	}

	type profileStatus struct {
		Profile     string `json:"profile"`
		TokenState  string `json:"tokenState"`
		ExpiresAt   string `json:"expiresAt,omitempty"`
		LastRefresh string `json:"lastRefreshedAt,omitempty"`
	}
	statuses := make([]profileStatus, 0, len(profiles))
	for _, p := range profiles {
		ps := profileStatus{Profile: p.Name}
		tokens, err := oauth.LoadTokens(serverURL, p.Name)
		switch {
		case err != nil:
			ps.TokenState = "missing"
		case tokens.IsExpired(time.Now()):
			ps.TokenState = "expired"
		default:
			ps.TokenState = "valid"
		}
		if tokens != nil && !tokens.ExpiresAt.IsZero() {
			ps.ExpiresAt = tokens.ExpiresAt.Format(time.RFC3339)
		}
		if !p.LastRefreshedAt.IsZero() {
			ps.LastRefresh = p.LastRefreshedAt.Format(time.RFC3339)
		}
		statuses = append(statuses, ps)
	}

	if jsonOutput() {
		return printJSON(statuses)
	}
	for _, ps := range statuses {
		line := fmt.Sprintf("%s: token %s", ps.Profile, ps.TokenState)
		if ps.ExpiresAt != "" {
			line += " (expires " + ps.ExpiresAt + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	serverURL, err := config.NormalizeURL(args[0])
	if err != nil {
		return err
	}
	home, err := paths.Home()
	if err != nil {
		return err
	}
	if err := oauth.NewProfileStore(paths.ProfilesFile(home)).Delete(serverURL, authProfile); err != nil {
		return err
	}
	if !jsonOutput() {
		fmt.Printf("removed credentials for %s (profile %q)\n", serverURL, authProfile)
	}
	return nil
}
