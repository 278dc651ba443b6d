package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"discoops/internal/httpapi"
	"discoops/internal/supervisor"
	"discoops/internal/watch"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-sync every event role of the server on a schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cron", Usage: "Cron spec or descriptor such as '@every 10m'. Overrides watch.schedule."},
			&cli.BoolFlag{Name: "no-http", Usage: "Do not serve /healthz, /metrics and /status."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			schedule := e.cfg.Watch.Schedule
			if s := c.String("cron"); s != "" {
				schedule = s
			}
			w, err := watch.New(e.logger, e.sync, e.guild(), schedule)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tree := supervisor.New(e.logger, supervisor.Config{})
			tree.Add(w)
			if !c.Bool("no-http") && e.cfg.Watch.HTTPAddr != "" {
				router := httpapi.NewRouter(e.logger, w, e.cfg.Watch.RateLimit)
				tree.Add(supervisor.NewHTTPService(httpapi.NewServer(e.cfg.Watch.HTTPAddr, router), 0))
				e.logger.Info("Serving health and metrics.", "addr", e.cfg.Watch.HTTPAddr)
			}

			if err := w.RunOnce(ctx); err != nil {
				e.logger.Error("Initial re-sync failed.", "error", err)
			}
			err = tree.Serve(ctx)
			if ctx.Err() != nil {
				e.logger.Info("Shutting down.")
				return nil
			}
			return err
		},
	}
}
