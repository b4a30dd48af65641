package main

import (
	"context"
	"fmt"
	"os"

	"catalog-hierarchy/config"
	"catalog-hierarchy/server"
	"catalog-hierarchy/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration failed: %v\n", err)
		os.Exit(1)
	}

	container, err := services.NewServiceFactory(cfg).CreateServices(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create services: %v\n", err)
		os.Exit(1)
	}
	defer container.Close()

	srv := server.NewServer(cfg, container)

	container.Logger.Info("Catalog hierarchy service starting", services.String("version", services.Version))
	if err := srv.Start(); err != nil {
		container.Logger.Error("Server failed", err)
		container.Close()
		os.Exit(1)
	}
}
