// Package bootstrap assembles the pipeline and its collaborators from
// configuration. Both binaries start here.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"metapro/internal/domain"
	"metapro/internal/embed"
	"metapro/internal/infra"
	"metapro/internal/infra/credentials"
	"metapro/internal/metadata"
	"metapro/internal/normalize"
	"metapro/internal/partial"
	"metapro/internal/pipeline"
	"metapro/internal/providers/genai"
	"metapro/internal/providers/openai"
	"metapro/internal/quota"
	"metapro/internal/rotation"
	"metapro/internal/storage"
)

const quotaSubject = "metapro"

// Deps holds everything a binary needs to serve runs.
type Deps struct {
	Config    *infra.Config
	Logger    *infra.Logger
	Pipeline  *pipeline.Pipeline
	Store     domain.PartialStore
	Artifacts *storage.FileStore
	SQL       *infra.SQLRunner

	closers []func()
}

// Close releases connections and helper processes in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *Deps) onClose(fn func()) { d.closers = append(d.closers, fn) }

// Build wires the configured backends. On error everything opened so far is
// closed again.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (_ *Deps, err error) {
	logger = infra.OrDiscard(logger)
	d := &Deps{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	storagePath := cfg.StoragePath
	if storagePath == "" {
		storagePath = "./storage"
	}
	if !filepath.IsAbs(storagePath) {
		if abs, aerr := filepath.Abs(storagePath); aerr == nil {
			storagePath = abs
		}
	}
	if d.Artifacts, err = storage.NewFileStore(storagePath); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		pool, perr := infra.NewDBPool(ctx, cfg)
		if perr != nil {
			return nil, perr
		}
		d.onClose(pool.Close)
		d.SQL = infra.NewSQLRunner(pool, *logger)
		if err = partial.EnsureSchema(ctx, d.SQL); err != nil {
			return nil, err
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		if rdb, err = infra.NewRedisClient(ctx, cfg); err != nil {
			return nil, err
		}
		d.onClose(func() { _ = rdb.Close() })
	}

	if d.Store, err = buildStore(cfg, storagePath, d.SQL, rdb, logger); err != nil {
		return nil, err
	}

	keys := resolveKeys(ctx, cfg, d.SQL, logger)
	describer, err := buildDescriber(cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		logger.Warn().Str("provider", cfg.DescribeProvider).Msg("no api keys configured, generating synthetic metadata")
	}

	gen, err := metadata.NewGenerator(metadata.Options{
		Describer:   describer,
		CallTimeout: cfg.CallTimeout,
		Category:    cfg.DefaultCategory,
		Releases:    cfg.DefaultReleases,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	writer, err := buildWriter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := writer.(*embed.ExiftoolWriter); ok {
		d.onClose(func() { _ = c.Close() })
	}

	var uploader domain.Uploader
	if cfg.MinioEndpoint != "" {
		u, uerr := storage.NewMinioUploader(ctx, cfg, logger)
		if uerr != nil {
			return nil, uerr
		}
		uploader = u
	}

	d.Pipeline, err = pipeline.New(pipeline.Options{
		Normalizer: normalize.New(normalize.Options{
			VectorWidth:  cfg.VectorTargetWidth,
			VectorHeight: cfg.VectorTargetHeight,
			Logger:       logger,
		}),
		Generator: gen,
		Rotator:   rotation.NewRotator(keys, cfg.CredentialFailureThreshold, logger),
		Retrier:   rotation.NewRetrier(cfg.MaxAttempts, cfg.RetryDelay, logger),
		Store:     d.Store,
		Quota:     buildQuota(cfg, d.SQL, rdb, logger),
		Writer:    writer,
		Artifacts: d.Artifacts,
		Uploader:  uploader,
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("provider", cfg.DescribeProvider).
		Int("credentials", max(len(keys), 1)).
		Str("partial_store", cfg.PartialStore).
		Str("embed_mode", cfg.EmbedMode).
		Int("batch_size", cfg.BatchSize).
		Int("workers", cfg.Workers).
		Bool("upload", uploader != nil).
		Msg("pipeline ready")
	return d, nil
}

func buildStore(cfg *infra.Config, storagePath string, sql *infra.SQLRunner, rdb *redis.Client, logger *infra.Logger) (domain.PartialStore, error) {
	logger = infra.OrDiscard(logger)
	switch cfg.PartialStore {
	case infra.PartialStorePostgres:
		if sql == nil {
			return nil, fmt.Errorf("postgres partial store needs DATABASE_URL")
		}
		return partial.NewPostgresStore(sql), nil
	case infra.PartialStoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis partial store needs REDIS_ADDR")
		}
		return partial.NewRedisStore(rdb, 0, logger), nil
	default:
		return partial.NewFileStore(filepath.Join(storagePath, "partial"), logger)
	}
}

func resolveKeys(ctx context.Context, cfg *infra.Config, sql *infra.SQLRunner, logger *infra.Logger) []string {
	logger = infra.OrDiscard(logger)
	var store *credentials.Store
	if sql != nil {
		store = credentials.NewStore(sql)
	}
	keys, err := store.Resolve(ctx, cfg.DescribeProvider, cfg.ProviderKeys())
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load stored api keys, using configured ones")
		return cfg.ProviderKeys()
	}
	return keys
}

func buildDescriber(cfg *infra.Config, logger *infra.Logger) (domain.Describer, error) {
	httpClient := &http.Client{Timeout: cfg.CallTimeout}
	if cfg.DescribeProvider == infra.ProviderOpenAI {
		return openai.NewClient(openai.Options{
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	return genai.NewClient(genai.Options{
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})
}

func buildWriter(cfg *infra.Config, logger *infra.Logger) (embed.MetadataWriter, error) {
	logger = infra.OrDiscard(logger)
	if cfg.EmbedMode == infra.EmbedModeSidecar {
		return embed.SidecarWriter{}, nil
	}
	w, err := embed.NewExiftoolWriter(cfg.ExiftoolPath)
	if err != nil {
		if cfg.ExiftoolPath != "" {
			return nil, err
		}
		logger.Warn().Err(err).Msg("exiftool unavailable, falling back to sidecar metadata")
		return embed.SidecarWriter{}, nil
	}
	return w, nil
}

func buildQuota(cfg *infra.Config, sql *infra.SQLRunner, rdb *redis.Client, logger *infra.Logger) domain.QuotaPolicy {
	logger = infra.OrDiscard(logger)
	chain := quota.Chain{quota.Static{Limit: cfg.MaxItemsPerRun}}
	if cfg.DailyItemQuota <= 0 {
		return chain
	}
	switch {
	case rdb != nil:
		chain = append(chain, quota.NewRedisDaily(rdb, quotaSubject, cfg.DailyItemQuota))
	case sql != nil:
		chain = append(chain, quota.NewPostgresDaily(sql, quotaSubject, cfg.DailyItemQuota))
	default:
		logger.Warn().Int("limit", cfg.DailyItemQuota).Msg("DAILY_ITEM_QUOTA needs redis or postgres, daily limit disabled")
	}
	return chain
}
