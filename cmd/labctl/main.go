// Package main implements the labctl CLI, which drives one lab session from
// the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/auth"
	"github.com/shehryarbajwa/virtual-lab/internal/config"
	"github.com/shehryarbajwa/virtual-lab/internal/control"
	"github.com/shehryarbajwa/virtual-lab/internal/docker"
	"github.com/shehryarbajwa/virtual-lab/internal/logging"
	"github.com/shehryarbajwa/virtual-lab/internal/remote"
)

var configPath string

func main() {
	err := rootCmd.Execute()
	logging.Flush()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "labctl",
	Short:        "Launch and manage a virtual Jupyter lab",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	logging.AddFlags(rootCmd.PersistentFlags())
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// gatewayClient builds an authenticated client for base using the configured static token.
func gatewayClient(cfg *config.Config, base string) *remote.Client {
	return remote.NewClient(base, auth.StaticToken(cfg.Token), nil, cfg.Control.RequestTimeout.Duration)
}

// newController returns the controller for the configured backend and a cleanup func.
func newController(ctx context.Context, cfg *config.Config) (control.Controller, func(), error) {
	if cfg.Backend != config.BackendDocker {
		return control.NewClient(gatewayClient(cfg, cfg.Control.BaseURL)), func() {}, nil
	}

	ctrl, err := docker.NewController(cfg.Docker.Image, cfg.Docker.Port, os.Getenv("USER"))
	if err != nil {
		return nil, nil, err
	}

	pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := ctrl.EnsureImage(pullCtx); err != nil {
		ctrl.Close()
		return nil, nil, fmt.Errorf("failed to ensure image: %w", err)
	}
	klog.V(2).InfoS("Notebook image ready", "image", cfg.Docker.Image)

	return ctrl, func() { ctrl.Close() }, nil
}
