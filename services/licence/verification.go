package licence

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	ctxlog "licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/metrics"

	"go.uber.org/zap"
)

type VerificationResult struct {
	Valid                   bool         `json:"valid"`
	Status                  string       `json:"status"`
	CryptographicallySigned bool         `json:"cryptographicallySigned"`
	IntegrityVerified       bool         `json:"integrityVerified"`
	Licence                 *LicenceView `json:"licence,omitempty"`
}

// LicenceView is the public part of a licence shown to verifiers.
type LicenceView struct {
	LicenceNo   string `json:"licenceNo"`
	CouncilID   string `json:"councilId"`
	RequestID   string `json:"requestId"`
	IssueDate   string `json:"issueDate"`
	ExpiryDate  string `json:"expiryDate"`
	PayloadHash string `json:"licencePayloadHash"`
	Algorithm   string `json:"algorithm"`
	KeyID       string `json:"keyId"`
}

type VerificationService struct {
	repo      *Repository
	artifacts ArtifactStore
	keys      *KeyManager
	now       func() time.Time
}

func NewVerificationService(repo *Repository, artifacts ArtifactStore, keys *KeyManager) *VerificationService {
	return &VerificationService{
		repo:      repo,
		artifacts: artifacts,
		keys:      keys,
		now:       time.Now,
	}
}

// Verify reports whether licenceNo is genuine, untampered and current.
// Ordinary invalidity is reported in the result, never as an error.
func (s *VerificationService) Verify(ctx context.Context, licenceNo string) (res *VerificationResult, err error) {
	defer func() {
		if res != nil {
			metrics.VerificationTotal.WithLabelValues(res.Status).Inc()
		}
	}()

	log := ctxlog.FromContext(ctx).With(zap.String("licence_no", licenceNo))

	lic, err := s.repo.FindByNo(ctx, licenceNo)
	if err != nil {
		if errors.Is(err, ErrLicenceNotFound) {
			return &VerificationResult{Status: StatusNotFound}, nil
		}
		return nil, PersistenceError("load licence", err)
	}
	if lic.Status == StatusPending {
		return &VerificationResult{Status: StatusNotFound}, nil
	}

	meta := lic.SignatureMetadata.Data()
	res = &VerificationResult{
		Licence: &LicenceView{
			LicenceNo:   lic.LicenceNo,
			CouncilID:   lic.CouncilID,
			RequestID:   lic.RequestID,
			IssueDate:   lic.IssueDate.UTC().Format(DisplayDateLayout),
			ExpiryDate:  lic.ExpiryDate.UTC().Format(DisplayDateLayout),
			PayloadHash: lic.LicencePayloadHash,
			Algorithm:   meta.Algorithm,
			KeyID:       meta.KeyID,
		},
	}

	artifact, err := s.artifacts.Get(ctx, lic.LicenceNo)
	switch {
	case errors.Is(err, ErrArtifactNotFound):
		log.Warn("licence artifact missing")
	case err != nil:
		return nil, PersistenceError("load licence artifact", err)
	case HashBytes(artifact) != lic.PDFHash:
		log.Warn("licence artifact hash mismatch")
	default:
		signed, err := s.verifySignature(ctx, lic, artifact, meta.Signature)
		if err != nil {
			return nil, err
		}
		res.CryptographicallySigned = signed
		res.IntegrityVerified = signed && s.signedHashMatches(lic, artifact, meta.Signature)
	}

	expired := lic.ExpiryDate.Before(s.now())
	switch {
	case expired:
		res.Status = StatusExpired
	case !res.IntegrityVerified:
		res.Status = StatusInvalidIntegrity
	default:
		res.Status = StatusActive
	}
	res.Valid = !expired && res.IntegrityVerified
	return res, nil
}

func (s *VerificationService) verifySignature(ctx context.Context, lic *Licence, artifact []byte, signature string) (bool, error) {
	pub, err := s.keys.PublicKey(ctx, lic.CouncilID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			ctxlog.FromContext(ctx).Warn("council public key missing", zap.String("council_id", lic.CouncilID))
			return false, nil
		}
		return false, err
	}

	ok, err := Verify(artifact, signature, pub)
	if err != nil {
		return false, KeyManagementError("parse council public key", err)
	}
	return ok, nil
}

func (s *VerificationService) signedHashMatches(lic *Licence, artifact []byte, signature string) bool {
	raw, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return HashBytes(artifact, raw) == lic.SignedPDFHash
}
