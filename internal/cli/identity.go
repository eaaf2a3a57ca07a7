package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/gezibash/wasmbus/internal/config"
	"github.com/gezibash/wasmbus/internal/keyring"
	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
)

// LoadSigner loads the host key invocations are signed with.
// Resolution order: seed > seed_file > key (keyring alias or public key) >
// the keyring default > a fresh ephemeral key.
func LoadSigner(v *viper.Viper) (identity.Signer, error) {
	if seed := strings.TrimSpace(v.GetString("seed")); seed != "" {
		return nkey.FromSeed(seed)
	}
	if path := v.GetString("seed_file"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is user supplied on purpose
		if err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
		return nkey.FromSeed(strings.TrimSpace(string(data)))
	}

	kr := Keyring(v)
	if name := v.GetString("key"); name != "" {
		s, err := kr.LoadSigner(context.Background(), name)
		if err != nil {
			return nil, fmt.Errorf("load key %q: %w", name, err)
		}
		return s, nil
	}
	s, err := kr.LoadSigner(context.Background(), "")
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, keyring.ErrNoDefault):
		return nkey.Generate()
	default:
		return nil, fmt.Errorf("load default key: %w", err)
	}
}

// Keyring opens the keyring in the configured data directory.
func Keyring(v *viper.Viper) *keyring.Keyring {
	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	return keyring.New(dataDir)
}
