package licence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyMaterial is the persisted form of a council key pair.
type KeyMaterial struct {
	CouncilID     string
	Algorithm     string
	PublicKeyPEM  []byte
	PrivateKeyPEM []byte
	CreatedAt     time.Time
}

// KeyStore persists one key pair per council. CreateIfAbsent must be atomic
// across processes and return whichever pair ended up stored.
type KeyStore interface {
	Get(ctx context.Context, councilID string) (*KeyMaterial, error)
	CreateIfAbsent(ctx context.Context, councilID string, km KeyMaterial) (*KeyMaterial, error)
}

type SigningKey struct {
	CouncilID        string    `gorm:"primaryKey;type:varchar(64)"`
	Algorithm        string    `gorm:"type:varchar(32);not null"`
	PublicKeyPEM     string    `gorm:"column:public_key_pem;type:text;not null"`
	SealedPrivateKey string    `gorm:"type:text;not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (SigningKey) TableName() string { return "council_signing_keys" }

type DBKeyStore struct {
	db     *gorm.DB
	sealer *Sealer
}

func NewDBKeyStore(db *gorm.DB, sealer *Sealer) *DBKeyStore {
	return &DBKeyStore{db: db, sealer: sealer}
}

func (s *DBKeyStore) Get(ctx context.Context, councilID string) (*KeyMaterial, error) {
	var row SigningKey
	err := s.db.WithContext(ctx).Where("council_id = ?", councilID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("load signing key: %w", err)
	}

	priv, err := s.sealer.Open(row.SealedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unseal signing key: %w", err)
	}

	return &KeyMaterial{
		CouncilID:     row.CouncilID,
		Algorithm:     row.Algorithm,
		PublicKeyPEM:  []byte(row.PublicKeyPEM),
		PrivateKeyPEM: priv,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func (s *DBKeyStore) CreateIfAbsent(ctx context.Context, councilID string, km KeyMaterial) (*KeyMaterial, error) {
	sealed, err := s.sealer.Seal(km.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("seal signing key: %w", err)
	}

	row := SigningKey{
		CouncilID:        councilID,
		Algorithm:        km.Algorithm,
		PublicKeyPEM:     string(km.PublicKeyPEM),
		SealedPrivateKey: sealed,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("insert signing key: %w", err)
	}

	// the row may belong to a concurrent winner
	return s.Get(ctx, councilID)
}
