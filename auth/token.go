package auth

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/globals"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned by FromConfig when no credential source is
// configured at all. This is the fatal "authentication unavailable" condition.
var ErrNoCredential = fmt.Errorf("no credential source configured")

// A TokenSource supplies the short-lived credential attached to the
// connection handshake. It is called once per connection attempt; a returned
// token is never reused across attempts.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FromConfig selects a token source from the auth configuration. OIDC wins
// over a token command, a token command wins over a static token.
func FromConfig(cfg *config.Config) (TokenSource, error) {
	ac := cfg.AuthConfig
	switch {
	case ac.OIDCConfig.ProviderUrl != "":
		return NewOIDCTokenSource(ac.OIDCConfig)
	case ac.TokenCommand != "":
		return CommandTokenSource{Command: ac.TokenCommand}, nil
	case ac.Token != "":
		return StaticTokenSource{RawToken: ac.Token}, nil
	}
	return nil, ErrNoCredential
}

// StaticTokenSource hands out a fixed token from the configuration. If the
// token is a JWT carrying an exp claim, an already-expired token is refused
// before dialing.
type StaticTokenSource struct {
	RawToken string
}

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	if exp, ok := Expiry(s.RawToken); ok {
		if time.Now().After(exp) {
			return "", fmt.Errorf("configured token expired at %s", exp)
		}
		globals.AppLogger.Debug("static token expiry", "expires", exp)
	}
	return s.RawToken, nil
}

// CommandTokenSource obtains a token by running an external command and
// trimming its output. This is how browser-less clients borrow a credential
// from an external auth helper.
type CommandTokenSource struct {
	Command string
}

func (s CommandTokenSource) Token(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", s.Command).Output()
	if err != nil {
		return "", fmt.Errorf("token command failed: %w", err)
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", fmt.Errorf("token command returned no output")
	}
	if exp, ok := Expiry(token); ok {
		globals.AppLogger.Debug("token expiry", "expires", exp)
	}
	return token, nil
}

// Expiry peeks at the exp claim of a JWT without verifying the signature.
// Verification is the server's job, the client only uses the expiry for
// logging and to refuse dialing with a token that is already dead.
func Expiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
