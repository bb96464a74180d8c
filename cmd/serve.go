package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/oab-process-sync/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API",
		Long: `Serves the HTTP API. With the memory queue the capture workers run in
this process too; with Pub/Sub they run in separate worker processes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRole(cmd, server.RoleServe)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume capture jobs from Pub/Sub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRole(cmd, server.RoleWorker)
		},
	}
}

func runRole(cmd *cobra.Command, role server.Role) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, rt.cfg, role, rt.logger, server.Options{Version: version})
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
