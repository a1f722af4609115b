// Command mcp-controld runs the MCP control plane: the HTTP API that
// registers, starts, stops, and monitors MCP server containers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/langconnect/mcp-control-plane/internal/authtoken"
	"github.com/langconnect/mcp-control-plane/internal/config"
	"github.com/langconnect/mcp-control-plane/internal/controller"
	"github.com/langconnect/mcp-control-plane/internal/obslog"
	"github.com/langconnect/mcp-control-plane/internal/realtime"
	"github.com/langconnect/mcp-control-plane/internal/registry"
	"github.com/langconnect/mcp-control-plane/internal/server"
	"github.com/langconnect/mcp-control-plane/internal/supervisor"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "mcp-controld",
		Short: "Control plane for MCP server instances running as Docker containers",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a mcp-control config file")

	root.AddCommand(serveCommand(&configPath), migrateCommand(&configPath))
	return root
}

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func migrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending registry database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return registry.Migrate(cfg.Database.URL())
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	obslog.Init(obslog.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	log := obslog.Component("main")

	if err := registry.Migrate(cfg.Database.URL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := registry.NewPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo := registry.NewPostgresRepository(pool)
	reg := registry.NewService(repo, nil, cfg.Docker.StartPort)

	sup, err := supervisor.Dial(ctx, cfg.Docker.NetworkName)
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}
	defer sup.Close()

	tokens := authtoken.NewManager(authtoken.Config{
		APIBaseURL:          cfg.Auth.IdentityProviderURL,
		IdentityProviderURL: cfg.Auth.IdentityProviderURL,
		JWTSecret:           cfg.Auth.JWTSecret,
		RequestTimeout:      cfg.Auth.RequestTimeout,
	})
	defer tokens.Close()

	ctrl := controller.New(reg, sup, tokens)
	hub := realtime.NewHub(nil)

	httpServer := server.New(&cfg.Server, ctrl, hub, tokens, pool)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).Msg("mcp control plane starting")
	return httpServer.Run(runCtx)
}
