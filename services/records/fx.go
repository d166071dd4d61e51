package records

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("records",
	fx.Provide(
		NewRequestStore,
		NewTenantConfigStore,
		NewPaymentStore,
		NewDocumentStore,
		NewNotificationService,
	),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		zap.L().Error("[records] failed to migrate", zap.Error(err))
		return err
	}
	return nil
}
