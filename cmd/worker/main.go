package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdprices/evidence/internal/bootstrap"
	"github.com/crowdprices/evidence/internal/config"
	"github.com/crowdprices/evidence/internal/core/ports"
	"github.com/crowdprices/evidence/internal/observability/metrics"
)

const service = "evidence-worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", workerMetrics.Handler())
		if err := http.ListenAndServe(":"+cfg.WorkerMetricsPort, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeProofUploaded(ctx, func(handlerCtx context.Context, proofID int64) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartProof()
		start := time.Now()
		if proof, err := app.Store.Repos().Proofs.GetByID(processCtx, proofID); err == nil {
			workerMetrics.ObserveQueueLag(service, start.Sub(proof.CreatedAt))
		}

		err := processProof(processCtx, app, workerMetrics, proofID)
		workerMetrics.FinishProof(service, time.Since(start), err)
		return err
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// processProof runs the full ML pass for one uploaded proof, then tries to
// auto-link whatever the models produced.
func processProof(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, proofID int64) error {
	if err := app.Ingest.ProcessByID(ctx, proofID, ports.IngestOptions{RunExtraction: true}); err != nil {
		return err
	}
	tags, err := app.Match.SweepPriceTags(ctx, proofID)
	if err != nil {
		return err
	}
	m.ObserveMatches("price_tag", tags)
	items, err := app.Match.SweepReceiptItems(ctx, proofID)
	if err != nil {
		return err
	}
	m.ObserveMatches("receipt_item", items)
	return nil
}
