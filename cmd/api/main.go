package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"nemprice.org/internal/auth"
	"nemprice.org/internal/config"
	"nemprice.org/internal/dataset"
	"nemprice.org/internal/httpapi"
	"nemprice.org/internal/obs"
)

// Set with -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthSyncInterval = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nemprice-api",
		Short:         "Authenticated electricity price API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, viper.New())
			if err != nil {
				obs.LogEvent("error", "startup_failed", map[string]any{"error": err.Error()})
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg); err != nil {
				obs.LogEvent("error", "startup_failed", map[string]any{"error": err.Error()})
				return err
			}
			return nil
		},
	}
	config.InstallFlags(cmd)
	cmd.AddCommand(newHashPasswordCmd())
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash usable as a password in NEMPRICE_USERS",
		Long:  "Print a bcrypt hash usable as a password in NEMPRICE_USERS. Without an argument the password is read from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	authSvc, err := auth.New(auth.Config{
		Secret:   cfg.JWTSecret,
		Users:    cfg.Users,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return err
	}

	prices := dataset.New(cfg.DataPath)
	if cfg.Preload {
		// a missing or bad file is not fatal; queries retry the load lazily
		if st, err := prices.Reload(); err != nil {
			obs.LogEvent("warn", "dataset_preload_failed", map[string]any{
				"source": prices.Path(),
				"error":  err.Error(),
			})
		} else {
			obs.LogEvent("info", "dataset_loaded", map[string]any{
				"source":      st.Source,
				"snapshot_id": st.SnapshotID,
				"records":     st.Records,
				"regions":     st.Regions,
			})
		}
	}
	obs.SetReady(prices.Stats().Loaded)

	if cfg.WatchData {
		go func() {
			if err := prices.Watch(ctx); err != nil {
				obs.LogEvent("error", "dataset_watch_stopped", map[string]any{"error": err.Error()})
			}
		}()
	}

	api := httpapi.New(httpapi.Deps{
		Auth:            authSvc,
		Prices:          prices,
		Version:         version,
		LoginRateBurst:  cfg.LoginRateBurst,
		LoginRatePerSec: cfg.LoginRatePerSec,
		MaxBodyBytes:    cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(prices)
		health.Register(grpcSrv)
		go health.Run(ctx, healthSyncInterval)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	obs.LogEvent("info", "server_started", map[string]any{
		"version":     version,
		"listen_addr": cfg.ListenAddr,
		"grpc_addr":   cfg.GRPCAddr,
		"data_path":   cfg.DataPath,
		"users":       authSvc.UserCount(),
	})

	var runErr error
	select {
	case <-ctx.Done():
		obs.LogEvent("info", "shutting_down", nil)
	case runErr = <-errCh:
		obs.LogEvent("error", "server_failed", map[string]any{"error": runErr.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.LogEvent("warn", "http_shutdown", map[string]any{"error": err.Error()})
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	obs.LogEvent("info", "stopped", nil)
	return runErr
}
