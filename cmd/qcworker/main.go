// Command qcworker drains the QC queue and runs every submission
// through the QC Pipeline, the consumer side of the at-least-once
// queue submission.Manager.Submit enqueues into.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/crowdtask-platform/engine/config"
	"github.com/crowdtask-platform/engine/internal/wiring"
	"github.com/crowdtask-platform/engine/log"
	"github.com/crowdtask-platform/engine/metrics"
	"github.com/crowdtask-platform/engine/qc"
)

var logger = log.New("qcworker")

var devFlag = cli.BoolFlag{
	Name:  "dev",
	Usage: "use human-readable console logging instead of JSON",
}

func main() {
	app := cli.NewApp()
	app.Name = "qcworker"
	app.Usage = "drains the QC queue and adjudicates submissions"
	app.Flags = []cli.Flag{devFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	if cliCtx.Bool(devFlag.Name) {
		log.SetDevelopment()
	}
	defer log.Sync()

	cfg := config.FromEnv()
	platform := wiring.Build(cfg)

	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	logger.Info("qc worker started", "batchSize", cfg.QCWorkerBatch)
	for ctx.Err() == nil {
		msgs, err := platform.QCQueue.Receive(ctx, cfg.QCWorkerBatch)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("receive failed", "err", err)
			continue
		}

		for _, msg := range msgs {
			var job qc.Job
			if err := json.Unmarshal(msg.Body, &job); err != nil {
				logger.Error("malformed qc job, dropping", "err", err)
				_ = platform.QCQueue.Delete(ctx, msg)
				continue
			}

			if err := platform.QC.Process(ctx, job); err != nil {
				logger.Error("qc process failed, leaving for redelivery", "submissionId", job.SubmissionID, "err", err)
				continue
			}
			_ = platform.QCQueue.Delete(ctx, msg)
		}
	}

	logger.Info("qc worker stopped")
	return nil
}
