package licence

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"licensing-controlplane/pkg/access"
	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/errutil"
	ctxlog "licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/metrics"
	"licensing-controlplane/services/records"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type IssueRequest struct {
	RequestID  string
	CouncilID  string
	IssueDate  *time.Time
	ExpiryDate *time.Time
	// Actor is the caller's role, checked against the payment bypass policy.
	Actor string
}

type IssuanceOrchestrator struct {
	db         *gorm.DB
	node       *snowflake.Node
	repo       *Repository
	requests   records.RequestStore
	councils   records.TenantConfigStore
	payments   records.PaymentStore
	documents  records.DocumentStore
	generator  DocumentGenerator
	keys       *KeyManager
	artifacts  ArtifactStore
	numberer   Numberer
	policy     *access.Policy
	dispatcher *Dispatcher

	validityYears  int
	numberAttempts int
	verifyBaseURL  string
	now            func() time.Time
}

type IssuanceParams struct {
	fx.In

	Config     *config.Config
	DB         *gorm.DB
	Node       *snowflake.Node
	Repo       *Repository
	Requests   records.RequestStore
	Councils   records.TenantConfigStore
	Payments   records.PaymentStore
	Documents  records.DocumentStore
	Generator  DocumentGenerator
	Keys       *KeyManager
	Artifacts  ArtifactStore
	Numberer   Numberer
	Policy     *access.Policy
	Dispatcher *Dispatcher
}

func NewIssuanceOrchestrator(p IssuanceParams) *IssuanceOrchestrator {
	o := &IssuanceOrchestrator{
		db:             p.DB,
		node:           p.Node,
		repo:           p.Repo,
		requests:       p.Requests,
		councils:       p.Councils,
		payments:       p.Payments,
		documents:      p.Documents,
		generator:      p.Generator,
		keys:           p.Keys,
		artifacts:      p.Artifacts,
		numberer:       p.Numberer,
		policy:         p.Policy,
		dispatcher:     p.Dispatcher,
		validityYears:  p.Config.Licence.ValidityYears,
		numberAttempts: p.Config.Licence.NumberAttempts,
		verifyBaseURL:  p.Config.Licence.VerifyBaseURL,
		now:            time.Now,
	}
	if o.validityYears <= 0 {
		o.validityYears = 1
	}
	if o.numberAttempts <= 0 {
		o.numberAttempts = 5
	}
	return o
}

// signedArtifact is everything produced before anything is persisted.
type signedArtifact struct {
	payload     LicencePayload
	payloadHash string
	pdf         []byte
	pdfHash     string
	signature   string
	signedHash  string
}

// Issue produces, signs and stores a licence for an approved request.
func (o *IssuanceOrchestrator) Issue(ctx context.Context, req IssueRequest) (lic *Licence, err error) {
	start := time.Now()
	defer func() {
		result := "issued"
		if err != nil {
			if result = errutil.ReasonOf(err); result == "" {
				result = "error"
			}
		} else {
			metrics.IssuanceDuration.Observe(time.Since(start).Seconds())
		}
		metrics.IssuanceTotal.WithLabelValues(result).Inc()
	}()

	log := ctxlog.FromContext(ctx).With(
		zap.String("council_id", req.CouncilID),
		zap.String("request_id", req.RequestID),
	)

	if req.RequestID == "" || req.CouncilID == "" {
		return nil, ValidationError("council_id and request_id are required", nil)
	}

	request, err := o.requests.GetByID(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, NotFoundError("licence request not found", err)
		}
		return nil, PersistenceError("load licence request", err)
	}
	if request.CouncilID != req.CouncilID {
		return nil, NotFoundError("licence request not found", nil)
	}

	council, err := o.councils.Get(ctx, req.CouncilID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, NotFoundError("council not found", err)
		}
		return nil, PersistenceError("load council", err)
	}

	if o.policy.CanBypassPayment(req.Actor) {
		log.Info("payment check bypassed", zap.String("actor", req.Actor))
	} else {
		payments, err := o.payments.ListCompletedFor(ctx, req.CouncilID, request.ReferenceNo)
		if err != nil {
			return nil, PersistenceError("load payments", err)
		}
		if len(payments) == 0 {
			return nil, PreconditionFailedError("no completed payment for this request", nil)
		}
	}

	issueDate, expiryDate, err := o.resolveDates(req)
	if err != nil {
		return nil, err
	}

	keyPair, err := o.keys.GetOrCreateKeyPair(ctx, req.CouncilID)
	if err != nil {
		return nil, err
	}

	var (
		signed *signedArtifact
		id     = o.node.Generate().String()
	)
	for attempt := 1; attempt <= o.numberAttempts && lic == nil; attempt++ {
		licenceNo, err := o.numberer.Next(ctx, issueDate.Year())
		if err != nil {
			return nil, PersistenceError("allocate licence number", err)
		}

		taken, err := o.repo.NumberExists(ctx, licenceNo)
		if err != nil {
			return nil, PersistenceError("check licence number", err)
		}
		if taken {
			log.Debug("licence number taken", zap.String("licence_no", licenceNo), zap.Int("attempt", attempt))
			continue
		}

		signed, err = o.produce(ctx, request, council, keyPair, licenceNo, issueDate, expiryDate)
		if err != nil {
			return nil, err
		}

		candidate := &Licence{
			ID:         id,
			CouncilID:  req.CouncilID,
			RequestID:  req.RequestID,
			LicenceNo:  licenceNo,
			IssueDate:  issueDate,
			ExpiryDate: expiryDate,
		}
		if err := o.repo.Reserve(ctx, candidate); err != nil {
			if errors.Is(err, ErrNumberTaken) {
				log.Debug("licence number lost to concurrent issuance", zap.String("licence_no", licenceNo), zap.Int("attempt", attempt))
				continue
			}
			return nil, PersistenceError("reserve licence number", err)
		}
		lic = candidate
	}
	if lic == nil {
		return nil, NumberingExhaustedError(
			fmt.Sprintf("no free licence number after %d attempts", o.numberAttempts), nil)
	}

	lic.LicencePayloadHash = signed.payloadHash
	lic.PDFHash = signed.pdfHash
	lic.SignedPDFHash = signed.signedHash
	lic.SignatureMetadata = datatypes.NewJSONType(SignatureMetadata{
		Algorithm: keyPair.Algorithm,
		IssuedAt:  o.now().UTC(),
		Signature: signed.signature,
		KeyID:     keyPair.KeyID,
	})

	ob, err := o.finalise(ctx, lic, request, signed)
	if err != nil {
		return nil, err
	}

	log = log.With(zap.String("licence_no", lic.LicenceNo))
	log.Info("licence issued", zap.Object("key", keyPair))

	if err := o.requests.UpdateStatus(ctx, req.RequestID, records.RequestStatusIssued, map[string]any{
		"issued_licence_no": lic.LicenceNo,
		"issued_at":         o.now().UTC(),
	}); err != nil {
		log.Warn("failed to mark request issued", zap.Error(err))
	}

	if ob != nil {
		if err := o.dispatcher.Dispatch(ctx, ob); err != nil {
			log.Warn("notification dispatch deferred to relay", zap.Error(err))
		}
	}

	return lic, nil
}

func (o *IssuanceOrchestrator) resolveDates(req IssueRequest) (time.Time, time.Time, error) {
	issue := o.now()
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	issue = issue.UTC().Truncate(time.Millisecond)

	expiry := issue.AddDate(o.validityYears, 0, 0)
	if req.ExpiryDate != nil {
		expiry = req.ExpiryDate.UTC().Truncate(time.Millisecond)
	}

	if !expiry.After(issue) {
		return time.Time{}, time.Time{}, ValidationError("expiry date must be after issue date", nil, errutil.Detail{
			Field:   "expiry_date",
			Message: "must be after issue_date",
		})
	}
	return issue, expiry, nil
}

// produce renders and signs the artifact for licenceNo without persisting anything.
func (o *IssuanceOrchestrator) produce(
	ctx context.Context,
	request *records.LicenceRequest,
	council *records.Council,
	keyPair *KeyPair,
	licenceNo string,
	issueDate, expiryDate time.Time,
) (*signedArtifact, error) {
	payload := LicencePayload{
		LicenceNo:       licenceNo,
		CouncilID:       council.ID,
		RequestID:       request.ID,
		IssueDate:       FormatTimestamp(issueDate),
		ExpiryDate:      FormatTimestamp(expiryDate),
		TradingName:     request.TradingName,
		ApplicantName:   request.ApplicantName,
		PremisesAddress: request.PremisesAddress,
		ServiceName:     request.ServiceName,
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	pdf, err := o.generator.Render(ctx, payload, council.DisplayName, o.verifyURL(council, licenceNo))
	if err != nil {
		return nil, DocumentGenerationError("render licence document", err)
	}

	signature, err := keyPair.Sign(pdf)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(signature)
	if err != nil {
		return nil, SigningError("decode signature", err)
	}

	return &signedArtifact{
		payload:     payload,
		payloadHash: canonical.Hash,
		pdf:         pdf,
		pdfHash:     HashBytes(pdf),
		signature:   signature,
		signedHash:  HashBytes(pdf, raw),
	}, nil
}

// finalise stores the artifact and commits the licence, its document record
// and its notification together. On failure the reservation and artifact are
// removed.
func (o *IssuanceOrchestrator) finalise(
	ctx context.Context,
	lic *Licence,
	request *records.LicenceRequest,
	signed *signedArtifact,
) (*NotificationOutbox, error) {
	stored, err := o.artifacts.Put(ctx, lic.LicenceNo, signed.pdf, ContentTypePDF)
	if err != nil {
		o.abandon(ctx, lic, false)
		return nil, PersistenceError("store licence artifact", err)
	}

	var ob *NotificationOutbox
	if request.ApplicantID != "" {
		ob = &NotificationOutbox{
			ID:        o.node.Generate().String(),
			LicenceID: lic.ID,
			Recipient: request.ApplicantID,
			Event:     EventLicenceIssued,
			Payload: datatypes.JSONMap{
				"licence_no":  lic.LicenceNo,
				"council_id":  lic.CouncilID,
				"request_id":  lic.RequestID,
				"expiry_date": signed.payload.ExpiryDate,
			},
			Status: OutboxPending,
		}
	}

	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.repo.Activate(ctx, tx, lic); err != nil {
			return err
		}
		if _, err := o.documents.WithTrx(tx).Create(ctx, records.OwnerTypeLicence, lic.ID, records.FileMeta{
			FilePath: stored.Path,
			FileSize: stored.Size,
			MimeType: stored.MimeType,
		}); err != nil {
			return err
		}
		if ob != nil {
			return o.repo.CreateOutbox(ctx, tx, ob)
		}
		return nil
	})
	if err != nil {
		lic.Status = StatusPending
		o.abandon(ctx, lic, true)
		return nil, PersistenceError("persist licence", err)
	}
	return ob, nil
}

func (o *IssuanceOrchestrator) abandon(ctx context.Context, lic *Licence, artifactWritten bool) {
	ctx = context.WithoutCancel(ctx)
	log := ctxlog.FromContext(ctx).With(zap.String("licence_no", lic.LicenceNo))

	if artifactWritten {
		if err := o.artifacts.Delete(ctx, lic.LicenceNo); err != nil {
			log.Warn("failed to delete artifact of abandoned issuance", zap.Error(err))
		}
	}
	if err := o.repo.DeletePending(ctx, lic.ID); err != nil {
		log.Warn("failed to delete abandoned reservation", zap.Error(err))
	}
}

func (o *IssuanceOrchestrator) verifyURL(council *records.Council, licenceNo string) string {
	base := o.verifyBaseURL
	if council.VerifyBaseURL != "" {
		base = council.VerifyBaseURL
	}
	return fmt.Sprintf("%s/v1/licences/%s/verify", strings.TrimRight(base, "/"), licenceNo)
}
