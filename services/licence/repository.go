package licence

import (
	"context"
	"errors"
	"time"

	"licensing-controlplane/pkg/db/option"
	"licensing-controlplane/pkg/repository"

	"gorm.io/gorm"
)

// ErrNumberTaken is returned by Reserve when the licence number is already held.
var ErrNumberTaken = errors.New("licence number taken")

type Repository struct {
	db      *gorm.DB
	licence repository.Repository[Licence]
	outbox  repository.Repository[NotificationOutbox]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:      db,
		licence: repository.ProvideStore[Licence](db),
		outbox:  repository.ProvideStore[NotificationOutbox](db),
	}
}

func (r *Repository) FindByNo(ctx context.Context, licenceNo string) (*Licence, error) {
	lic, err := r.licence.FindOne(ctx, &Licence{LicenceNo: licenceNo})
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return nil, ErrLicenceNotFound
	}
	return lic, nil
}

func (r *Repository) NumberExists(ctx context.Context, licenceNo string) (bool, error) {
	n, err := r.licence.Count(ctx, &Licence{LicenceNo: licenceNo})
	return n > 0, err
}

// Reserve inserts a pending row holding the licence number.
func (r *Repository) Reserve(ctx context.Context, lic *Licence) error {
	lic.Status = StatusPending
	if err := r.licence.Create(ctx, lic); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrNumberTaken
		}
		return err
	}
	return nil
}

// Activate moves a reservation to active inside tx.
func (r *Repository) Activate(ctx context.Context, tx *gorm.DB, lic *Licence) error {
	res := tx.WithContext(ctx).Model(lic).
		Where("status = ?", StatusPending).
		Select("status", "licence_payload_hash", "pdf_hash", "signed_pdf_hash", "signature_metadata").
		Updates(&Licence{
			Status:             StatusActive,
			LicencePayloadHash: lic.LicencePayloadHash,
			PDFHash:            lic.PDFHash,
			SignedPDFHash:      lic.SignedPDFHash,
			SignatureMetadata:  lic.SignatureMetadata,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("licence reservation no longer pending")
	}
	lic.Status = StatusActive
	return nil
}

// DeletePending drops a reservation. Active licences are never removed.
func (r *Repository) DeletePending(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, StatusPending).
		Delete(&Licence{}).Error
}

func (r *Repository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Licence, error) {
	return r.licence.Find(ctx, &Licence{Status: StatusPending},
		option.WithWhere("created_at < ?", before),
		option.WithOrder("created_at"),
		option.WithLimit(limit),
	)
}

func (r *Repository) CreateOutbox(ctx context.Context, tx *gorm.DB, ob *NotificationOutbox) error {
	return r.outbox.WithTrx(tx).Create(ctx, ob)
}

func (r *Repository) GetOutbox(ctx context.Context, id string) (*NotificationOutbox, error) {
	ob, err := r.outbox.FindOne(ctx, &NotificationOutbox{ID: id})
	if err != nil {
		return nil, err
	}
	if ob == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return ob, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, before time.Time, limit int) ([]*NotificationOutbox, error) {
	return r.outbox.Find(ctx, &NotificationOutbox{Status: OutboxPending},
		option.WithWhere("created_at < ?", before),
		option.WithOrder("created_at"),
		option.WithLimit(limit),
	)
}

// MarkOutbox moves an outbox row to status, but only from one of the from states.
func (r *Repository) MarkOutbox(ctx context.Context, id, status string, from ...string) error {
	q := r.db.WithContext(ctx).Model(&NotificationOutbox{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	return q.Update("status", status).Error
}

func (r *Repository) RecordOutboxFailure(ctx context.Context, id string, cause error, status string) error {
	values := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": cause.Error(),
	}
	if status != "" {
		values["status"] = status
	}
	return r.db.WithContext(ctx).Model(&NotificationOutbox{}).Where("id = ?", id).Updates(values).Error
}
