package cmd

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/vault"
)

// NewVault builds the credential vault from a hex-encoded 256-bit
// master key.
func NewVault(credentials persistence.CredentialRepository, hexKey string, logger *slog.Logger) (*vault.Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("vault key must be hex encoded: %w", err)
	}

	encryptor, err := vault.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault encryptor: %w", err)
	}

	return vault.NewVault(credentials, encryptor, logger), nil
}
