package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/service/secret"
)

// Secret selects how secret:// references in plugin configurations resolve
type Secret struct {
	provider      string
	encryptionKey string
}

func (x *Secret) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "secret-provider",
			Category:    "Secret",
			Usage:       "Secret provider (env, encrypted)",
			Value:       secret.ProviderEnv,
			Sources:     cli.EnvVars("SECRET_PROVIDER"),
			Destination: &x.provider,
		},
		&cli.StringFlag{
			Name:        "encryption-key",
			Category:    "Secret",
			Usage:       "Key decrypting secrets of the encrypted provider",
			Sources:     cli.EnvVars("ENCRYPTION_KEY"),
			Destination: &x.encryptionKey,
		},
	}
}

func (x Secret) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", x.provider),
		slog.Int("encryption-key.len", len(x.encryptionKey)),
	)
}

// EncryptionKey returns the configured key
func (x *Secret) EncryptionKey() string {
	return x.encryptionKey
}

func (x *Secret) Configure() (secret.Provider, error) {
	p, err := secret.New(x.provider, x.encryptionKey)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V("provider", x.provider))
	}
	return p, nil
}
