package licence

import (
	"context"
	"testing"
	"time"

	"licensing-controlplane/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestVerifyIssuedLicenceIsActive(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	lic := env.issue(t)

	res, err := env.verifier.Verify(context.Background(), lic.LicenceNo)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, StatusActive, res.Status)
	require.True(t, res.CryptographicallySigned)
	require.True(t, res.IntegrityVerified)
	require.NotNil(t, res.Licence)
	require.Equal(t, lic.LicenceNo, res.Licence.LicenceNo)
	require.Equal(t, testCouncilID, res.Licence.CouncilID)
	require.Equal(t, lic.LicencePayloadHash, res.Licence.PayloadHash)
	require.Equal(t, lic.IssueDate.Format(DisplayDateLayout), res.Licence.IssueDate)
	require.Equal(t, SignatureAlgorithm, res.Licence.Algorithm)
}

func TestVerifyUnknownLicence(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.verifier.Verify(context.Background(), "LIC-2026-9999")
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, StatusNotFound, res.Status)
	require.Nil(t, res.Licence)
}

func TestVerifyPendingReservationIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.repo.Reserve(context.Background(), &Licence{
		ID:         "pending",
		CouncilID:  testCouncilID,
		RequestID:  testRequestID,
		LicenceNo:  "LIC-2026-0100",
		IssueDate:  time.Now(),
		ExpiryDate: time.Now().AddDate(1, 0, 0),
	}))

	res, err := env.verifier.Verify(context.Background(), "LIC-2026-0100")
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, res.Status)
}

func TestVerifyTamperedArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	lic := env.issue(t)
	ctx := context.Background()

	pdf, err := env.artifacts.Get(ctx, lic.LicenceNo)
	require.NoError(t, err)
	pdf[len(pdf)/2] ^= 0x01
	_, err = env.artifacts.Put(ctx, lic.LicenceNo, pdf, ContentTypePDF)
	require.NoError(t, err)

	res, err := env.verifier.Verify(ctx, lic.LicenceNo)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.False(t, res.IntegrityVerified)
	require.False(t, res.CryptographicallySigned)
	require.Equal(t, StatusInvalidIntegrity, res.Status)
}

func TestVerifyRejectsForgedHashes(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	lic := env.issue(t)
	ctx := context.Background()

	// replace the artifact and rewrite the stored hash to match it, the
	// signature no longer covers the bytes
	forged := []byte("%PDF-1.3 forged")
	_, err := env.artifacts.Put(ctx, lic.LicenceNo, forged, ContentTypePDF)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&Licence{}).Where("id = ?", lic.ID).Update("pdf_hash", HashBytes(forged)).Error)

	res, err := env.verifier.Verify(ctx, lic.LicenceNo)
	require.NoError(t, err)
	require.False(t, res.CryptographicallySigned)
	require.False(t, res.IntegrityVerified)
	require.Equal(t, StatusInvalidIntegrity, res.Status)
}

func TestVerifyMissingArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	lic := env.issue(t)

	require.NoError(t, env.artifacts.Delete(context.Background(), lic.LicenceNo))

	res, err := env.verifier.Verify(context.Background(), lic.LicenceNo)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.False(t, res.IntegrityVerified)
	require.Equal(t, StatusInvalidIntegrity, res.Status)
}

func TestVerifyExpiredLicence(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()

	issue := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	lic, err := env.issuer.Issue(context.Background(), IssueRequest{
		RequestID:  testRequestID,
		CouncilID:  testCouncilID,
		IssueDate:  &issue,
		ExpiryDate: &expiry,
	})
	require.NoError(t, err)

	res, err := env.verifier.Verify(context.Background(), lic.LicenceNo)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, StatusExpired, res.Status)
	require.True(t, res.IntegrityVerified)
	require.Equal(t, "01 January 2021", res.Licence.ExpiryDate)
}

func TestVerifyExpiryTakesPrecedenceOverIntegrity(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	lic := env.issue(t)

	env.verifier.now = func() time.Time { return lic.ExpiryDate.Add(time.Hour) }
	require.NoError(t, env.artifacts.Delete(context.Background(), lic.LicenceNo))

	res, err := env.verifier.Verify(context.Background(), lic.LicenceNo)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, res.Status)
	require.False(t, res.IntegrityVerified)
}

func TestVerifyWithoutCouncilKey(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	lic := env.issue(t)

	require.NoError(t, env.db.Where("council_id = ?", testCouncilID).Delete(&SigningKey{}).Error)
	verifier := NewVerificationService(env.repo, env.artifacts, NewKeyManager(env.keyStore, 2048))

	res, err := verifier.Verify(context.Background(), lic.LicenceNo)
	require.NoError(t, err)
	require.False(t, res.CryptographicallySigned)
	require.Equal(t, StatusInvalidIntegrity, res.Status)
}

func TestVerifyStoreFailureIsError(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Migrator().DropTable(&Licence{}))

	_, err := env.verifier.Verify(context.Background(), "LIC-2026-0001")
	require.Error(t, err)
	require.Equal(t, ReasonPersistence, errutil.ReasonOf(err))
}
