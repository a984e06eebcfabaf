package app

import (
	"context"
	"fmt"

	"github.com/sahilchouksey/cohort-lms/config"
	admin_handlers "github.com/sahilchouksey/cohort-lms/handlers/admin"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/services/legacy"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"go.uber.org/zap"
)

// LegacyConfigured reports whether LEGACY_SOURCE has the settings it needs.
func LegacyConfigured(env *config.EnviornmentVariable) bool {
	switch env.LEGACY_SOURCE {
	case config.LegacySourceMongo:
		return env.LEGACY_MONGO_URI != ""
	case config.LegacySourceFile:
		return env.LEGACY_EXPORT_PATH != ""
	case config.LegacySourceSpaces:
		return env.DO_SPACES_BUCKET != ""
	default:
		return false
	}
}

// NewReconcilerOpener opens the configured legacy store on every call, so the
// server never reconciles against an export loaded at startup.
func NewReconcilerOpener(env *config.EnviornmentVariable, store repository.Store, log *zap.Logger) admin_handlers.ReconcilerOpener {
	log = logger.OrNop(log)
	return func(ctx context.Context) (*services.ReconciliationService, func(), error) {
		reader, closeReader, err := OpenLegacyReader(ctx, env, "", "")
		if err != nil {
			return nil, closeReader, err
		}
		return services.NewReconciliationService(reader, store, log), closeReader, nil
	}
}

// OpenLegacyReader opens the legacy store selected by source (falling back to
// LEGACY_SOURCE). exportPath overrides LEGACY_EXPORT_PATH for the file source.
// The returned close func is always safe to call.
func OpenLegacyReader(ctx context.Context, env *config.EnviornmentVariable, source, exportPath string) (legacy.Reader, func(), error) {
	noop := func() {}
	if source == "" {
		source = env.LEGACY_SOURCE
	}
	if exportPath == "" {
		exportPath = env.LEGACY_EXPORT_PATH
	}

	switch source {
	case config.LegacySourceMongo:
		reader, err := legacy.ConnectMongo(ctx, env.LEGACY_MONGO_URI, env.LEGACY_MONGO_DB)
		if err != nil {
			return nil, noop, err
		}
		return reader, func() { _ = reader.Close(context.Background()) }, nil

	case config.LegacySourceFile:
		if exportPath == "" {
			return nil, noop, fmt.Errorf("legacy export path is required for the file source")
		}
		reader, err := legacy.OpenExportFile(exportPath)
		if err != nil {
			return nil, noop, err
		}
		return reader, noop, nil

	case config.LegacySourceSpaces:
		if env.DO_SPACES_BUCKET == "" {
			return nil, noop, fmt.Errorf("DO_SPACES_BUCKET is required for the spaces source")
		}
		client, err := legacy.NewSpacesClient(legacy.SpacesConfig{
			Endpoint:  env.DO_SPACES_ENDPOINT,
			Region:    env.DO_SPACES_REGION,
			Bucket:    env.DO_SPACES_BUCKET,
			Key:       env.LEGACY_EXPORT_KEY,
			AccessKey: env.DO_SPACES_KEY,
			SecretKey: env.DO_SPACES_SECRET,
		})
		if err != nil {
			return nil, noop, err
		}
		reader, err := legacy.LoadSpacesExport(ctx, client, env.DO_SPACES_BUCKET, env.LEGACY_EXPORT_KEY)
		if err != nil {
			return nil, noop, err
		}
		return reader, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown legacy source %q (want mongo, file or spaces)", source)
	}
}
