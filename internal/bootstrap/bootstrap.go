package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdprices/evidence/internal/config"
	"github.com/crowdprices/evidence/internal/core/usecase"
	"github.com/crowdprices/evidence/internal/infrastructure/barcode"
	"github.com/crowdprices/evidence/internal/infrastructure/ml"
	"github.com/crowdprices/evidence/internal/infrastructure/queue/nats"
	"github.com/crowdprices/evidence/internal/infrastructure/repository/postgres"
	"github.com/crowdprices/evidence/internal/infrastructure/resilience"
	"github.com/crowdprices/evidence/internal/infrastructure/storage/localfs"
	"github.com/crowdprices/evidence/internal/infrastructure/taxonomy"
	"github.com/crowdprices/evidence/internal/observability/logging"
)

// App wires the full evidence pipeline: storage, queue, ML clients and the
// usecases on top of them.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Store *postgres.Store
	Queue *nats.Queue

	Prices      *usecase.PriceUseCase
	Proofs      *usecase.ProofUseCase
	Ingest      *usecase.IngestUseCase
	Match       *usecase.MatchUseCase
	Annotate    *usecase.AnnotateUseCase
	Maintenance *usecase.MaintenanceUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	content, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init proof storage: %w", err)
	}

	dispatchExec := resilience.NewExecutor("dispatch", resilience.DispatchPolicy(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: dispatchExec,
	})
	if err != nil {
		return nil, fmt.Errorf("init dispatch queue: %w", err)
	}

	resolver := taxonomy.NewCachedResolver(
		taxonomy.New(cfg.TaxonomyURL),
		time.Duration(cfg.TaxonomyCacheTTL)*time.Second,
	)

	inferenceExec := resilience.NewExecutor("inference", resilience.InferencePolicy(), logger)
	mlClient := ml.New(cfg.InferenceURL, cfg.InferenceRateLimit, inferenceExec)
	detector := ml.NewDetector(mlClient)
	extractor := ml.NewExtractor(mlClient)

	barcodes := barcode.NewService()
	repairer := barcode.NewRepairer(barcodes, store.Repos().Products)

	ingestCfg := usecase.IngestConfig{
		DetectorModel:      cfg.DetectorModel,
		ExtractorModel:     cfg.ExtractorModel,
		ReceiptModel:       cfg.ReceiptModel,
		DetectionThreshold: cfg.DetectionThreshold,
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Queue:  queue,

		Prices:      usecase.NewPriceUseCase(store, resolver),
		Proofs:      usecase.NewProofUseCase(store, content, queue, logger),
		Ingest:      usecase.NewIngestUseCase(store, content, detector, extractor, barcodes, repairer, ingestCfg, logger),
		Match:       usecase.NewMatchUseCase(store, barcodes, logger),
		Annotate:    usecase.NewAnnotateUseCase(store),
		Maintenance: usecase.NewMaintenanceUseCase(store, queue, logger),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
