package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"catalog-hierarchy/config"
	"catalog-hierarchy/services"
)

// loadConfig resolves configuration the same way the server does. The CLI
// never serves HTTP, so rate limiting is irrelevant and always off.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	if opts.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", opts.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.RateLimit.Enabled = false
	return cfg, nil
}

func openContainer(ctx context.Context, cfg *config.Config) (*services.ServiceContainer, error) {
	logger := services.NewLoggerFromConfig(&services.LoggerConfig{
		Level:  services.ParseLogLevel(cfg.Logging.Level),
		Format: "text",
		Output: os.Stderr,
	})
	container, err := services.NewServiceFactory(cfg).WithLogger(logger).CreateServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("create services: %w", err)
	}
	return container, nil
}

// withManager loads config, wires the services and hands the manager to fn
// under the command timeout.
func withManager(parent context.Context, opts *globalOptions, fn func(ctx context.Context, m *services.HierarchyManager) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	container, err := openContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	return fn(ctx, container.Manager)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalID(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
