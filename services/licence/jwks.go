package licence

import (
	"context"

	"github.com/go-jose/go-jose/v4"
)

// JWKS publishes a council's verification key as a JSON Web Key Set so
// third parties can check licence signatures offline.
func JWKS(ctx context.Context, keys *KeyManager, councilID string) (*jose.JSONWebKeySet, error) {
	pemBytes, err := keys.PublicKey(ctx, councilID)
	if err != nil {
		return nil, err
	}

	pub, err := ParsePublicKey(pemBytes)
	if err != nil {
		return nil, KeyManagementError("parse council public key", err)
	}
	kid, err := KeyID(pemBytes)
	if err != nil {
		return nil, KeyManagementError("derive key id", err)
	}

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       pub,
			KeyID:     kid,
			Algorithm: JWKAlgorithm,
			Use:       "sig",
		}},
	}, nil
}
