package licence

import (
	"fmt"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/sequence"
	"licensing-controlplane/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/vault-client-go"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("licence.module",
	fx.Provide(
		NewRepository,
		provideKeyStore,
		provideKeyManager,
		provideArtifactStore,
		provideNumberer,
		fx.Annotate(NewPDFGenerator, fx.As(new(DocumentGenerator))),
		NewDispatcher,
		NewIssuanceOrchestrator,
		NewVerificationService,
	),
	fx.Invoke(Migrate),
)

var ServerModule = fx.Module("licence.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var WorkerModule = fx.Module("licence.worker",
	Module,
	fx.Provide(
		NewNotifyHandler,
		provideRelay,
	),
	fx.Invoke(
		registerTaskHandlers,
		StartRelay,
	),
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		zap.L().Error("[licence] failed to migrate", zap.Error(err))
		return err
	}
	return nil
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func registerTaskHandlers(mux *asynq.ServeMux, h *NotifyHandler) {
	mux.Handle(taskname.LicenceNotify, h)
}

type keyStoreParams struct {
	fx.In

	Config *config.Config
	DB     *gorm.DB
	Vault  *vault.Client `optional:"true"`
}

func provideKeyStore(p keyStoreParams) (KeyStore, error) {
	switch p.Config.Licence.KeyStore {
	case "vault":
		if p.Vault == nil {
			return nil, fmt.Errorf("key store %q needs a vault client", "vault")
		}
		return NewVaultKeyStore(p.Vault, p.Config.Vault.Mount, p.Config.Vault.KeyPrefix), nil
	case "database", "":
		sealer, err := NewSealer(p.Config.SecretAES)
		if err != nil {
			return nil, err
		}
		return NewDBKeyStore(p.DB, sealer), nil
	default:
		return nil, fmt.Errorf("unsupported key store %q", p.Config.Licence.KeyStore)
	}
}

func provideKeyManager(cfg *config.Config, store KeyStore) *KeyManager {
	return NewKeyManager(store, cfg.Licence.KeyBits)
}

type artifactStoreParams struct {
	fx.In

	Config *config.Config
	Minio  *minio.Client `optional:"true"`
}

func provideArtifactStore(p artifactStoreParams) (ArtifactStore, error) {
	switch p.Config.Licence.ArtifactStore {
	case "local":
		return NewLocalArtifactStore(p.Config.Licence.LocalArtifactDir), nil
	case "minio", "":
		if p.Minio == nil {
			return nil, fmt.Errorf("artifact store %q needs a minio client", "minio")
		}
		return NewMinioArtifactStore(p.Minio, p.Config.Minio.BucketName), nil
	default:
		return nil, fmt.Errorf("unsupported artifact store %q", p.Config.Licence.ArtifactStore)
	}
}

type numbererParams struct {
	fx.In

	Config   *config.Config
	Sequence sequence.Generator `optional:"true"`
}

func provideNumberer(p numbererParams) (Numberer, error) {
	switch p.Config.Licence.Numbering {
	case NumberingSequence:
		if p.Sequence == nil {
			return nil, fmt.Errorf("numbering %q needs a sequence generator", NumberingSequence)
		}
		return NewSequenceNumberer(p.Sequence), nil
	case NumberingRandom, "":
		return RandomNumberer{}, nil
	default:
		return nil, fmt.Errorf("unsupported numbering %q", p.Config.Licence.Numbering)
	}
}

func provideRelay(cfg *config.Config, repo *Repository, dispatcher *Dispatcher, artifacts ArtifactStore) *Relay {
	return NewRelay(repo, dispatcher, artifacts, cfg.Licence.RelayInterval, cfg.Licence.PendingTTL)
}
