package licence

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	SignatureAlgorithm = "RSA-SHA256"
	JWKAlgorithm       = "RS256"

	pemTypePublic  = "PUBLIC KEY"
	pemTypePrivate = "RSA PRIVATE KEY"
)

// Sign returns the hex encoded RSASSA-PKCS1-v1_5 SHA-256 signature of data.
func Sign(data []byte, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", SigningError("sign artifact", errors.New("private key is nil"))
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", SigningError("sign artifact", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify reports whether signatureHex is a valid signature of data under the
// PEM public key. Only a malformed key is an error.
func Verify(data []byte, signatureHex string, publicKeyPEM []byte) (bool, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false, err
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, nil
	}

	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil, nil
}

// KeyID is the first 16 hex characters of the SHA-256 of the DER public key.
func KeyID(publicKeyPEM []byte) (string, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return "", errors.New("public key is not PEM encoded")
	}
	sum := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(sum[:])[:16], nil
}

func ParsePublicKey(publicKeyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil || block.Type != pemTypePublic {
		return nil, errors.New("public key is not a PEM encoded PUBLIC KEY block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", parsed)
	}
	return pub, nil
}

func parsePrivateKey(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil || block.Type != pemTypePrivate {
		return nil, errors.New("private key is not a PEM encoded RSA PRIVATE KEY block")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func encodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der}), nil
}

func encodePrivateKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypePrivate,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}
