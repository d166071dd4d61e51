package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"licensing-controlplane/pkg/db/option"
	"licensing-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned by the lookups below when no row matches.
var ErrNotFound = errors.New("record not found")

type RequestStore interface {
	GetByID(ctx context.Context, id string) (*LicenceRequest, error)
	UpdateStatus(ctx context.Context, id, status string, extra map[string]any) error
}

type TenantConfigStore interface {
	Get(ctx context.Context, councilID string) (*Council, error)
}

type PaymentStore interface {
	ListCompletedFor(ctx context.Context, councilID, requestRef string) ([]*Payment, error)
}

type DocumentStore interface {
	WithTrx(tx *gorm.DB) DocumentStore
	Create(ctx context.Context, ownerType, ownerID string, meta FileMeta) (*Document, error)
	ListFor(ctx context.Context, ownerType, ownerID string) ([]*Document, error)
}

type NotificationService interface {
	Notify(ctx context.Context, recipient, event string, payload map[string]any) error
}

type requestStore struct {
	repo repository.Repository[LicenceRequest]
}

func NewRequestStore(db *gorm.DB) RequestStore {
	return &requestStore{repo: repository.ProvideStore[LicenceRequest](db)}
}

func (s *requestStore) GetByID(ctx context.Context, id string) (*LicenceRequest, error) {
	req, err := s.repo.FindOne(ctx, &LicenceRequest{ID: id})
	if err != nil {
		return nil, fmt.Errorf("find licence request %s: %w", id, err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *requestStore) UpdateStatus(ctx context.Context, id, status string, extra map[string]any) error {
	values := map[string]any{"status": status}
	for k, v := range extra {
		values[k] = v
	}
	if err := s.repo.Update(ctx, id, values); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update licence request %s: %w", id, err)
	}
	return nil
}

type tenantConfigStore struct {
	repo repository.Repository[Council]
}

func NewTenantConfigStore(db *gorm.DB) TenantConfigStore {
	return &tenantConfigStore{repo: repository.ProvideStore[Council](db)}
}

func (s *tenantConfigStore) Get(ctx context.Context, councilID string) (*Council, error) {
	council, err := s.repo.FindOne(ctx, &Council{ID: councilID})
	if err != nil {
		return nil, fmt.Errorf("find council %s: %w", councilID, err)
	}
	if council == nil {
		return nil, ErrNotFound
	}
	return council, nil
}

type paymentStore struct {
	repo repository.Repository[Payment]
}

func NewPaymentStore(db *gorm.DB) PaymentStore {
	return &paymentStore{repo: repository.ProvideStore[Payment](db)}
}

func (s *paymentStore) ListCompletedFor(ctx context.Context, councilID, requestRef string) ([]*Payment, error) {
	payments, err := s.repo.Find(ctx, &Payment{
		CouncilID:  councilID,
		RequestRef: requestRef,
		Status:     PaymentStatusCompleted,
	}, option.WithOrder("completed_at DESC"))
	if err != nil {
		return nil, fmt.Errorf("list payments for %s: %w", requestRef, err)
	}
	return payments, nil
}

type documentStore struct {
	repo repository.Repository[Document]
	node *snowflake.Node
}

func NewDocumentStore(db *gorm.DB, node *snowflake.Node) DocumentStore {
	return &documentStore{
		repo: repository.ProvideStore[Document](db),
		node: node,
	}
}

func (s *documentStore) WithTrx(tx *gorm.DB) DocumentStore {
	return &documentStore{
		repo: s.repo.WithTrx(tx),
		node: s.node,
	}
}

func (s *documentStore) Create(ctx context.Context, ownerType, ownerID string, meta FileMeta) (*Document, error) {
	doc := &Document{
		ID:        s.node.Generate().String(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		FilePath:  meta.FilePath,
		FileSize:  meta.FileSize,
		MimeType:  meta.MimeType,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document for %s/%s: %w", ownerType, ownerID, err)
	}
	return doc, nil
}

func (s *documentStore) ListFor(ctx context.Context, ownerType, ownerID string) ([]*Document, error) {
	return s.repo.Find(ctx, &Document{OwnerType: ownerType, OwnerID: ownerID}, option.WithOrder("created_at"))
}

type notificationService struct {
	repo repository.Repository[Notification]
	node *snowflake.Node
}

func NewNotificationService(db *gorm.DB, node *snowflake.Node) NotificationService {
	return &notificationService{
		repo: repository.ProvideStore[Notification](db),
		node: node,
	}
}

func (s *notificationService) Notify(ctx context.Context, recipient, event string, payload map[string]any) error {
	if recipient == "" {
		return errors.New("notification recipient is empty")
	}

	n := &Notification{
		ID:          s.node.Generate().String(),
		Recipient:   recipient,
		Event:       event,
		Payload:     payload,
		DeliveredAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	zap.L().Info("notification delivered",
		zap.String("recipient", recipient),
		zap.String("event", event),
	)
	return nil
}
