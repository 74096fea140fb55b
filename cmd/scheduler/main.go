// Command scheduler runs the three background jobs — scheduled-publish,
// assignment expiry, and dispute auto-resolution — via
// scheduler.Loops.Run.
package main

import (
	"context"
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
)

var logger = log.New("scheduler")

var devFlag = cli.BoolFlag{
	Name:  "dev",
	Usage: "use human-readable console logging instead of JSON",
}

func main() {
	app := cli.NewApp()
	app.Name = "scheduler"
	app.Usage = "runs the publish/expiry/dispute background jobs"
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

	logger.Info("scheduler started")
	platform.Scheduler.Run(ctx)
	logger.Info("scheduler stopped")
	return nil
}
