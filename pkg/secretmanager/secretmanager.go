package secretmanager

import (
	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault builds a vault client from the standard VAULT_* environment variables.
func ProvideVault() (*vault.Client, error) {
	return vault.New(
		vault.WithEnvironment(),
	)
}
