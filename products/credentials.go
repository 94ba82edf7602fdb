package products

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultTokenEnv is the environment variable EnvCredentials reads when no
// other name is configured.
const DefaultTokenEnv = "BUNDLER_PRODUCTS_TOKEN"

// ErrNoCredential is returned when a provider has no token to offer.
var ErrNoCredential = errors.New("no product API credential available")

// CredentialProvider supplies the bearer token for the product API.
// Token is called before every request so a provider may refresh or rotate
// tokens between pages.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// EnvCredentials reads the token from an environment variable.
type EnvCredentials struct {
	// Var is the variable name. Empty means DefaultTokenEnv.
	Var string
}

// Token implements CredentialProvider.
func (e EnvCredentials) Token(context.Context) (string, error) {
	name := e.Var
	if name == "" {
		name = DefaultTokenEnv
	}
	tok := strings.TrimSpace(os.Getenv(name))
	if tok == "" {
		return "", fmt.Errorf("%w: environment variable %s is empty", ErrNoCredential, name)
	}
	return tok, nil
}

// StaticCredentials is a fixed token.
type StaticCredentials string

// Token implements CredentialProvider.
func (s StaticCredentials) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}
