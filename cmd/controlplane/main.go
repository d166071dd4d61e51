package main

import (
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licensing-controlplane/pkg/access"
	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db"
	"licensing-controlplane/pkg/gen"
	"licensing-controlplane/pkg/health"
	"licensing-controlplane/pkg/httpapi"
	"licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/minio"
	"licensing-controlplane/pkg/otelcol"
	"licensing-controlplane/pkg/profiling"
	"licensing-controlplane/pkg/redis"
	"licensing-controlplane/pkg/secretmanager"
	"licensing-controlplane/pkg/sequence"
	"licensing-controlplane/pkg/server"
	"licensing-controlplane/pkg/task"
	"licensing-controlplane/services/licence"
	"licensing-controlplane/services/records"
)

func main() {
	opts := []fx.Option{
		configModule(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		minio.Client,
		task.Client,
		gen.Module,
		access.Module,
		health.Module,
		httpapi.Module,
		records.Module,
		licence.ServerModule,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		fxLogger,
	}
	if _, ok := os.LookupEnv("VAULT_ADDR"); ok {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

// configModule reads from the remote provider when REMOTE_CONFIG_PROVIDER is set.
func configModule() fx.Option {
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return config.RemoteModule
	}
	return config.Module
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
