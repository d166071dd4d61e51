package licence

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"licensing-controlplane/pkg/metrics"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/singleflight"
)

const minKeyBits = 2048

// KeyPair is a council's signing key. The private half never leaves this type.
type KeyPair struct {
	CouncilID    string
	Algorithm    string
	KeyID        string
	PublicKeyPEM []byte

	privateKey *rsa.PrivateKey
}

// Sign signs data with the council's private key.
func (k *KeyPair) Sign(data []byte) (string, error) {
	return Sign(data, k.privateKey)
}

func (k *KeyPair) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("council_id", k.CouncilID)
	enc.AddString("algorithm", k.Algorithm)
	enc.AddString("key_id", k.KeyID)
	return nil
}

type KeyManager struct {
	store KeyStore
	bits  int

	mu    sync.RWMutex
	cache map[string]*KeyPair
	group singleflight.Group
}

func NewKeyManager(store KeyStore, bits int) *KeyManager {
	if bits < minKeyBits {
		bits = minKeyBits
	}
	return &KeyManager{
		store: store,
		bits:  bits,
		cache: make(map[string]*KeyPair),
	}
}

// GetOrCreateKeyPair returns the council's key pair, generating and storing
// one on first use.
func (m *KeyManager) GetOrCreateKeyPair(ctx context.Context, councilID string) (*KeyPair, error) {
	if councilID == "" {
		return nil, KeyManagementError("load key pair", errors.New("council id is empty"))
	}
	if kp := m.cached(councilID); kp != nil {
		metrics.KeyCacheHits.Inc()
		return kp, nil
	}
	metrics.KeyCacheMiss.Inc()

	v, err, _ := m.group.Do(councilID, func() (any, error) {
		if kp := m.cached(councilID); kp != nil {
			return kp, nil
		}

		km, err := m.store.Get(ctx, councilID)
		if errors.Is(err, ErrKeyNotFound) {
			km, err = m.create(ctx, councilID)
		}
		if err != nil {
			return nil, err
		}

		kp, err := newKeyPair(km)
		if err != nil {
			return nil, err
		}
		m.remember(kp)
		return kp, nil
	})
	if err != nil {
		return nil, KeyManagementError("load key pair", err)
	}
	return v.(*KeyPair), nil
}

// PublicKey returns the council's public key PEM without ever creating one.
func (m *KeyManager) PublicKey(ctx context.Context, councilID string) ([]byte, error) {
	if kp := m.cached(councilID); kp != nil {
		metrics.KeyCacheHits.Inc()
		return kp.PublicKeyPEM, nil
	}
	metrics.KeyCacheMiss.Inc()

	km, err := m.store.Get(ctx, councilID)
	if err != nil {
		return nil, KeyManagementError("load public key", err)
	}
	kp, err := newKeyPair(km)
	if err != nil {
		return nil, KeyManagementError("load public key", err)
	}
	m.remember(kp)
	return kp.PublicKeyPEM, nil
}

func (m *KeyManager) create(ctx context.Context, councilID string) (*KeyMaterial, error) {
	key, err := rsa.GenerateKey(rand.Reader, m.bits)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	pub, err := encodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	km, err := m.store.CreateIfAbsent(ctx, councilID, KeyMaterial{
		CouncilID:     councilID,
		Algorithm:     SignatureAlgorithm,
		PublicKeyPEM:  pub,
		PrivateKeyPEM: encodePrivateKey(key),
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("council signing key ready", zap.String("council_id", councilID))
	return km, nil
}

func (m *KeyManager) cached(councilID string) *KeyPair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[councilID]
}

func (m *KeyManager) remember(kp *KeyPair) {
	m.mu.Lock()
	m.cache[kp.CouncilID] = kp
	m.mu.Unlock()
}

func newKeyPair(km *KeyMaterial) (*KeyPair, error) {
	priv, err := parsePrivateKey(km.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	kid, err := KeyID(km.PublicKeyPEM)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		CouncilID:    km.CouncilID,
		Algorithm:    km.Algorithm,
		KeyID:        kid,
		PublicKeyPEM: km.PublicKeyPEM,
		privateKey:   priv,
	}, nil
}
