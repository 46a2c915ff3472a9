// Command maintenance runs the batch repair jobs: duplicate recompute,
// duplicate-proof merging, counter recount and redispatch of unprocessed
// proofs.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/crowdprices/evidence/internal/bootstrap"
	"github.com/crowdprices/evidence/internal/config"
)

const service = "evidence-maintenance"

func main() {
	job := flag.String("job", "recount", "job to run: recount | duplicates | merge-proofs | redispatch")
	proofID := flag.Int64("proof-id", 0, "reference proof id for merge-proofs")
	flag.Parse()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	switch *job {
	case "recount":
		if err := app.Maintenance.Recount(ctx); err != nil {
			log.Fatalf("recount error: %v", err)
		}
		log.Printf("recount done")
	case "duplicates":
		changed, err := app.Maintenance.RecomputeDuplicates(ctx)
		if err != nil {
			log.Fatalf("duplicate recompute error: %v", err)
		}
		log.Printf("duplicate recompute done, %d prices changed", changed)
	case "merge-proofs":
		if *proofID <= 0 {
			log.Fatalf("merge-proofs requires -proof-id")
		}
		merged, err := app.Maintenance.MergeDuplicateProofs(ctx, *proofID, cfg.ProofMergeMD5Check)
		if err != nil {
			log.Fatalf("proof merge error: %v", err)
		}
		log.Printf("proof merge done, %d duplicates merged into %d", merged, *proofID)
	case "redispatch":
		dispatched, err := app.Maintenance.RedispatchUnprocessed(ctx)
		if err != nil {
			log.Fatalf("redispatch error: %v", err)
		}
		log.Printf("redispatch done, %d proofs re-enqueued", dispatched)
	default:
		log.Fatalf("unknown job %q", *job)
	}
}
