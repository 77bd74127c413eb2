// Package secrets resolves runtime credentials. The environment-backed
// provider is the default; deployments with a dedicated secret store
// implement Provider and swap it in at startup.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when a secret is not present in the provider
var ErrNotFound = fmt.Errorf("secret not found")

// Provider resolves named secrets
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// EnvProvider resolves secrets from environment variables. A secret
// named "database.password" is read from AGENT_ROUTER_SECRET_DATABASE_PASSWORD.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates the environment-backed provider
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{prefix: "AGENT_ROUTER_SECRET_"}
}

// Get resolves one secret
func (p *EnvProvider) Get(_ context.Context, name string) (string, error) {
	key := p.prefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}
