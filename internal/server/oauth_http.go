package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	oauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers/dex"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"
)

// OAuthProviderDex is the Dex OIDC provider.
const OAuthProviderDex = "dex"

// OAuthConfig configures OAuth 2.1 protection of the MCP endpoint.
type OAuthConfig struct {
	// BaseURL is the server's public base URL (e.g. https://llm-gauge.example.com).
	BaseURL string

	// Provider is recorded in server metadata. Only "dex" is supported.
	Provider string

	DexIssuerURL    string
	DexClientID     string
	DexClientSecret string
}

// ApplyEnv fills unset Dex settings from DEX_ISSUER_URL, DEX_CLIENT_ID and
// DEX_CLIENT_SECRET.
func (c *OAuthConfig) ApplyEnv() {
	if c.DexIssuerURL == "" {
		c.DexIssuerURL = os.Getenv("DEX_ISSUER_URL")
	}
	if c.DexClientID == "" {
		c.DexClientID = os.Getenv("DEX_CLIENT_ID")
	}
	if c.DexClientSecret == "" {
		c.DexClientSecret = os.Getenv("DEX_CLIENT_SECRET")
	}
}

// Validate reports every missing or invalid setting.
func (c OAuthConfig) Validate() error {
	var errs []error
	if c.Provider != "" && c.Provider != OAuthProviderDex {
		errs = append(errs, fmt.Errorf("unsupported OAuth provider %q (supported: %s)", c.Provider, OAuthProviderDex))
	}
	if err := validateHTTPSRequirement(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("OAuth base URL validation failed: %w", err))
	}
	if c.DexIssuerURL == "" {
		errs = append(errs, errors.New("dex issuer URL is required (--dex-issuer-url or DEX_ISSUER_URL)"))
	}
	if c.DexClientID == "" {
		errs = append(errs, errors.New("dex client ID is required (--dex-client-id or DEX_CLIENT_ID)"))
	}
	if c.DexClientSecret == "" {
		errs = append(errs, errors.New("dex client secret is required (--dex-client-secret or DEX_CLIENT_SECRET)"))
	}
	return errors.Join(errs...)
}

// oauthLayer owns the authorization server sitting in front of the MCP endpoint.
type oauthLayer struct {
	server  *oauth.Server
	handler *oauth.Handler
}

func newOAuthLayer(cfg OAuthConfig) (*oauthLayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dexProvider, err := dex.NewProvider(&dex.Config{
		IssuerURL:    cfg.DexIssuerURL,
		ClientID:     cfg.DexClientID,
		ClientSecret: cfg.DexClientSecret,
		RedirectURL:  cfg.BaseURL + "/oauth/callback",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Dex provider: %w", err)
	}

	// Single replica, so tokens and clients live in memory.
	store := memory.New()
	logger := slog.Default()

	srv, err := oauth.NewServer(
		dexProvider,
		store,
		store,
		store,
		&oauthserver.Config{
			Issuer:                    cfg.BaseURL,
			AllowRefreshTokenRotation: true,
			MaxClientsPerIP:           10,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}

	return &oauthLayer{server: srv, handler: oauth.NewHandler(srv, logger)}, nil
}

// register mounts the OAuth routes on mux and guards mcp behind token validation.
func (l *oauthLayer) register(mux *http.ServeMux, endpoint string, mcp http.Handler) {
	l.handler.RegisterAuthorizationServerMetadataRoutes(mux)
	l.handler.RegisterProtectedResourceMetadataRoutes(mux, endpoint)
	mux.HandleFunc("/oauth/authorize", l.handler.ServeAuthorization)
	mux.HandleFunc("/oauth/token", l.handler.ServeToken)
	mux.HandleFunc("/oauth/callback", l.handler.ServeCallback)
	mux.HandleFunc("/oauth/register", l.handler.ServeClientRegistration)
	mux.HandleFunc("/oauth/revoke", l.handler.ServeTokenRevocation)
	mux.HandleFunc("/oauth/introspect", l.handler.ServeTokenIntrospection)
	mux.Handle(endpoint, l.handler.ValidateToken(mcp))
}

func (l *oauthLayer) shutdown(ctx context.Context) {
	if err := l.server.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown OAuth server", "error", err)
	}
}

// validateHTTPSRequirement allows plain HTTP only on loopback addresses.
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return nil
		}
		return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
	default:
		return fmt.Errorf("invalid URL scheme: %s (must be http for localhost or https)", u.Scheme)
	}
}
