package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/api"
	"github.com/shehryarbajwa/virtual-lab/internal/auth"
	"github.com/shehryarbajwa/virtual-lab/internal/config"
	"github.com/shehryarbajwa/virtual-lab/internal/control"
	"github.com/shehryarbajwa/virtual-lab/internal/docker"
	"github.com/shehryarbajwa/virtual-lab/internal/files"
	"github.com/shehryarbajwa/virtual-lab/internal/logging"
	"github.com/shehryarbajwa/virtual-lab/internal/ratelimit"
	"github.com/shehryarbajwa/virtual-lab/internal/remote"
	"github.com/shehryarbajwa/virtual-lab/internal/session"
)

func main() {
	fs := pflag.NewFlagSet("labd", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	logging.AddFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if err := run(*configPath); err != nil {
		klog.ErrorS(err, "labd exited")
		logging.Flush()
		os.Exit(1)
	}
	logging.Flush()
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	klog.InfoS("Starting virtual lab server", "backend", cfg.Backend, "addr", cfg.ListenAddr)

	verifier := auth.NewVerifier([]byte(cfg.Auth.Secret))
	keyring := auth.NewKeyring()

	controllers, closeBackend, err := newControllers(cfg, keyring)
	if err != nil {
		return err
	}
	defer closeBackend()

	sessionCfg := cfg.SessionConfig()
	sessions := session.NewManager(func(userID string) *session.Machine {
		return session.NewMachine(userID, session.Deps{Controller: controllers(userID)}, sessionCfg)
	})
	klog.InfoS("Session manager initialized", "budget", cfg.Session.Budget.Duration)

	filesFor := func(string) files.Lister { return files.Unavailable{} }
	if cfg.Control.FilesBaseURL != "" {
		filesFor = func(userID string) files.Lister {
			gateway := remote.NewClient(cfg.Control.FilesBaseURL, keyring.Provider(userID), nil, cfg.Control.RequestTimeout.Duration)
			return files.NewClient(gateway)
		}
	}

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimit.PerHour, cfg.RateLimit.Burst)
	klog.InfoS("Rate limiter initialized", "perHour", cfg.RateLimit.PerHour, "burst", cfg.RateLimit.Burst)

	handler := api.NewHandler(sessions, filesFor, cfg.Control.RequestTimeout.Duration)
	srv := api.NewServer(cfg.ListenAddr, handler.SetupRoutes(verifier, keyring, rateLimiter, cfg.RateLimit.PerHour))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		klog.InfoS("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := rateLimiter.Prune(2 * time.Hour); n > 0 {
					klog.V(2).InfoS("Pruned idle rate limiters", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		klog.InfoS("Shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.StopTimeout.Duration+10*time.Second)
		defer cancel()

		srvErr := srv.Shutdown(shutdownCtx)
		labErr := sessions.Shutdown(shutdownCtx)
		return errors.Join(srvErr, labErr)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	klog.InfoS("Server stopped cleanly")
	return nil
}

// newControllers returns the per-user controller factory for the configured backend.
func newControllers(cfg *config.Config, keyring *auth.Keyring) (func(string) control.Controller, func(), error) {
	switch cfg.Backend {
	case config.BackendDocker:
		ctrl, err := docker.NewController(cfg.Docker.Image, cfg.Docker.Port, "")
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		klog.InfoS("Ensuring notebook image is available", "image", cfg.Docker.Image)
		if err := ctrl.EnsureImage(ctx); err != nil {
			ctrl.Close()
			return nil, nil, fmt.Errorf("failed to ensure image: %w", err)
		}

		return func(userID string) control.Controller {
			return ctrl.ForUser(userID)
		}, func() { ctrl.Close() }, nil

	default:
		return func(userID string) control.Controller {
			gateway := remote.NewClient(cfg.Control.BaseURL, keyring.Provider(userID), nil, cfg.Control.RequestTimeout.Duration)
			return control.NewClient(gateway)
		}, func() {}, nil
	}
}
