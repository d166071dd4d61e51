package licence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"
	"go.uber.org/zap"
)

// VaultKeyStore keeps key pairs in a KV v2 mount at <prefix>/<councilID>.
type VaultKeyStore struct {
	client *vault.Client
	mount  string
	prefix string
}

func NewVaultKeyStore(client *vault.Client, mount, prefix string) *VaultKeyStore {
	return &VaultKeyStore{client: client, mount: mount, prefix: prefix}
}

func (s *VaultKeyStore) secretPath(councilID string) string {
	return path.Join(s.prefix, councilID)
}

func (s *VaultKeyStore) Get(ctx context.Context, councilID string) (*KeyMaterial, error) {
	resp, err := s.client.Secrets.KvV2Read(ctx, s.secretPath(councilID), vault.WithMountPath(s.mount))
	if err != nil {
		if vault.IsErrorStatus(err, http.StatusNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("read signing key from vault: %w", err)
	}
	if resp == nil || resp.Data.Data == nil {
		return nil, ErrKeyNotFound
	}

	field := func(key string) string {
		if v, ok := resp.Data.Data[key].(string); ok {
			return v
		}
		return ""
	}

	pub, priv := field("public_key"), field("private_key")
	if pub == "" || priv == "" {
		return nil, errors.New("vault signing key is missing public_key or private_key")
	}

	km := &KeyMaterial{
		CouncilID:     councilID,
		Algorithm:     field("algorithm"),
		PublicKeyPEM:  []byte(pub),
		PrivateKeyPEM: []byte(priv),
	}
	if km.Algorithm == "" {
		km.Algorithm = SignatureAlgorithm
	}
	if created, err := time.Parse(time.RFC3339, field("created_at")); err == nil {
		km.CreatedAt = created
	}
	return km, nil
}

func (s *VaultKeyStore) CreateIfAbsent(ctx context.Context, councilID string, km KeyMaterial) (*KeyMaterial, error) {
	_, err := s.client.Secrets.KvV2Write(ctx, s.secretPath(councilID), schema.KvV2WriteRequest{
		Data: map[string]any{
			"algorithm":   km.Algorithm,
			"public_key":  string(km.PublicKeyPEM),
			"private_key": string(km.PrivateKeyPEM),
			"created_at":  time.Now().UTC().Format(time.RFC3339),
		},
		// cas=0 only succeeds when the secret does not exist yet
		Options: map[string]any{"cas": 0},
	}, vault.WithMountPath(s.mount))
	if err != nil {
		if !vault.IsErrorStatus(err, http.StatusBadRequest) {
			return nil, fmt.Errorf("write signing key to vault: %w", err)
		}
		zap.L().Info("signing key already stored in vault", zap.String("council_id", councilID))
	}

	return s.Get(ctx, councilID)
}
