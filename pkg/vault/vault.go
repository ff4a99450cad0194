package vault

import (
	"context"
	"errors"
	"log/slog"

	"github.com/voltflow/voltflow/pkg/persistence"
)

// ErrAccessDenied is returned for any lookup where the credential does
// not exist, is inactive, or belongs to another user. The three cases
// are deliberately indistinguishable to the caller.
var ErrAccessDenied = errors.New("credential not found or access denied")

// Vault resolves credentials by (id, user) and decrypts them on
// demand. Plaintext is never written back anywhere.
type Vault struct {
	credentials persistence.CredentialRepository
	encryptor   *Encryptor
	logger      *slog.Logger
}

func NewVault(credentials persistence.CredentialRepository, encryptor *Encryptor, logger *slog.Logger) *Vault {
	return &Vault{
		credentials: credentials,
		encryptor:   encryptor,
		logger:      logger.With("module", "vault"),
	}
}

// Resolve implements models.SecretResolver.
func (v *Vault) Resolve(ctx context.Context, credentialID, userID string) (map[string]any, error) {
	credential, err := v.credentials.ByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, persistence.ErrCredentialNotFound) {
			return nil, ErrAccessDenied
		}

		return nil, err
	}

	if credential.UserID != userID || !credential.Active {
		v.logger.WarnContext(ctx, "Refusing credential lookup",
			"credential_id", credentialID,
			"requested_by", userID)

		return nil, ErrAccessDenied
	}

	return v.encryptor.Decrypt(credential.Payload)
}
