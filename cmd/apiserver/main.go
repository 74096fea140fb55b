// Command apiserver runs the HTTP boundary: the requester/worker/admin/
// wallet routes plus /metrics, all served off one httpapi.Server.
package main

import (
	"fmt"
	"net/http"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/crowdtask-platform/engine/config"
	"github.com/crowdtask-platform/engine/httpapi"
	"github.com/crowdtask-platform/engine/internal/wiring"
	"github.com/crowdtask-platform/engine/log"
)

var logger = log.New("apiserver")

var devFlag = cli.BoolFlag{
	Name:  "dev",
	Usage: "use human-readable console logging instead of JSON",
}

func main() {
	app := cli.NewApp()
	app.Name = "apiserver"
	app.Usage = "crowdsourcing microtask platform HTTP API"
	app.Flags = []cli.Flag{devFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.Bool(devFlag.Name) {
		log.SetDevelopment()
	}
	defer log.Sync()

	cfg := config.FromEnv()
	platform := wiring.Build(cfg)

	server := httpapi.New(platform.Tasks, platform.Assignment, platform.Submission, platform.Dispute, platform.Wallet)
	if platform.Reporting != nil {
		server.UseReporting(platform.Reporting)
	}

	logger.Info("listening", "addr", cfg.HTTPAddr)
	return http.ListenAndServe(cfg.HTTPAddr, server.Handler())
}
