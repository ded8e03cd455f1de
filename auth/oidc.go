package auth

import (
	"context"
	"fmt"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/globals"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/clientcredentials"
)

// OIDCTokenSource obtains a fresh token from the configured OpenID Connect
// provider on every connection attempt via the client credentials grant.
// Provider discovery is repeated per attempt on purpose: credentials are
// short-lived and attempts are rare (one per connect/reconnect).
type OIDCTokenSource struct {
	cfg config.OIDCConfig
}

func NewOIDCTokenSource(cfg config.OIDCConfig) (*OIDCTokenSource, error) {
	if cfg.ClientId == "" {
		return nil, fmt.Errorf("oidc client_id is required")
	}
	return &OIDCTokenSource{cfg: cfg}, nil
}

func (s *OIDCTokenSource) Token(ctx context.Context) (string, error) {
	provider, err := oidc.NewProvider(ctx, s.cfg.ProviderUrl)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}
	cc := clientcredentials.Config{
		ClientID:     s.cfg.ClientId,
		ClientSecret: s.cfg.ClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
		Scopes:       s.cfg.Scopes,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("could not obtain token: %w", err)
	}
	globals.AppLogger.Debug("obtained oidc token", "expires", tok.Expiry)
	return tok.AccessToken, nil
}
