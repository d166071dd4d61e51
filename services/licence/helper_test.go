package licence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"licensing-controlplane/pkg/access"
	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/task/mock"
	"licensing-controlplane/services/records"
	"licensing-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

const (
	testCouncilID = "C1"
	testRequestID = "R1"
	testApplicant = "applicant_1"
)

type testEnv struct {
	db         *gorm.DB
	node       *snowflake.Node
	repo       *Repository
	keys       *KeyManager
	keyStore   *countingKeyStore
	artifacts  ArtifactStore
	fs         afero.Fs
	enqueuer   *mock.MockEnqueuer
	dispatcher *Dispatcher
	issuer     *IssuanceOrchestrator
	verifier   *VerificationService
	generator  *stubGenerator
	numberer   *scriptedNumberer
}

type envOption func(*IssuanceParams)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	models := append(records.Models(), Models()...)
	db := testutil.NewTestDB(t, models...)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	sealer, err := NewSealer("test-secret")
	require.NoError(t, err)
	store := &countingKeyStore{KeyStore: NewDBKeyStore(db, sealer)}
	keys := NewKeyManager(store, 2048)

	fs := afero.NewMemMapFs()
	artifacts := NewFSArtifactStore(fs)

	ctrl := gomock.NewController(t)
	enqueuer := mock.NewMockEnqueuer(ctrl)

	repo := NewRepository(db)
	dispatcher := NewDispatcher(repo, enqueuer)

	policy, err := access.NewDefaultPolicy()
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Licence.ValidityYears = 1
	cfg.Licence.NumberAttempts = 3
	cfg.Licence.VerifyBaseURL = "https://licences.example.test"

	generator := &stubGenerator{inner: NewPDFGenerator()}
	numberer := &scriptedNumberer{fallback: RandomNumberer{}}

	p := IssuanceParams{
		Config:     cfg,
		DB:         db,
		Node:       node,
		Repo:       repo,
		Requests:   records.NewRequestStore(db),
		Councils:   records.NewTenantConfigStore(db),
		Payments:   records.NewPaymentStore(db),
		Documents:  records.NewDocumentStore(db, node),
		Generator:  generator,
		Keys:       keys,
		Artifacts:  artifacts,
		Numberer:   numberer,
		Policy:     policy,
		Dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(&p)
	}

	return &testEnv{
		db:         db,
		node:       node,
		repo:       repo,
		keys:       keys,
		keyStore:   store,
		artifacts:  p.Artifacts,
		fs:         fs,
		enqueuer:   enqueuer,
		dispatcher: dispatcher,
		issuer:     NewIssuanceOrchestrator(p),
		verifier:   NewVerificationService(repo, p.Artifacts, keys),
		generator:  generator,
		numberer:   numberer,
	}
}

// seed stores an approved request with a completed payment.
func (e *testEnv) seed(t *testing.T, paid bool) {
	t.Helper()

	require.NoError(t, e.db.Create(&records.Council{ID: testCouncilID, DisplayName: "Harbour City Council"}).Error)
	require.NoError(t, e.db.Create(&records.LicenceRequest{
		ID:              testRequestID,
		CouncilID:       testCouncilID,
		ReferenceNo:     "REF-1",
		ApplicantID:     testApplicant,
		ApplicantName:   "Jane Doe",
		TradingName:     "Acme",
		PremisesAddress: "Section 1 Lot 2",
		ServiceName:     "Trading Licence",
		Status:          records.RequestStatusApproved,
	}).Error)

	if paid {
		now := time.Now()
		require.NoError(t, e.db.Create(&records.Payment{
			ID:          "P1",
			CouncilID:   testCouncilID,
			RequestRef:  "REF-1",
			Amount:      15000,
			Status:      records.PaymentStatusCompleted,
			CompletedAt: &now,
		}).Error)
	}
}

func (e *testEnv) expectDispatch() {
	e.enqueuer.EXPECT().
		Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&asynq.TaskInfo{}, nil).
		AnyTimes()
}

func (e *testEnv) issue(t *testing.T) *Licence {
	t.Helper()
	lic, err := e.issuer.Issue(context.Background(), IssueRequest{RequestID: testRequestID, CouncilID: testCouncilID})
	require.NoError(t, err)
	return lic
}

func (e *testEnv) licenceCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&Licence{}).Count(&n).Error)
	return n
}

type countingKeyStore struct {
	KeyStore
	creates atomic.Int32
}

func (s *countingKeyStore) CreateIfAbsent(ctx context.Context, councilID string, km KeyMaterial) (*KeyMaterial, error) {
	s.creates.Add(1)
	return s.KeyStore.CreateIfAbsent(ctx, councilID, km)
}

type stubGenerator struct {
	inner DocumentGenerator
	err   error
}

func (g *stubGenerator) Render(ctx context.Context, payload LicencePayload, councilName, verifyURL string) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.inner.Render(ctx, payload, councilName, verifyURL)
}

// scriptedNumberer returns queued numbers first, then defers to fallback.
type scriptedNumberer struct {
	mu       sync.Mutex
	queue    []string
	fallback Numberer
}

func (n *scriptedNumberer) push(numbers ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, numbers...)
}

func (n *scriptedNumberer) Next(ctx context.Context, year int) (string, error) {
	n.mu.Lock()
	if len(n.queue) > 0 {
		next := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()
		return next, nil
	}
	n.mu.Unlock()
	if n.fallback == nil {
		return "", errors.New("no licence numbers left")
	}
	return n.fallback.Next(ctx, year)
}

// failingArtifactStore wraps a store and fails Put or Delete on demand.
type failingArtifactStore struct {
	ArtifactStore
	putErr error
}

func (s *failingArtifactStore) Put(ctx context.Context, licenceNo string, data []byte, contentType string) (StoredArtifact, error) {
	if s.putErr != nil {
		return StoredArtifact{}, s.putErr
	}
	return s.ArtifactStore.Put(ctx, licenceNo, data, contentType)
}
