package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/server"
)

func main() {
	// Parse flags
	port := flag.String("port", "", "Admin API port (overrides PORT)")
	pattern := flag.String("apps", "", "Glob of app descriptor files (yaml, toml or json)")
	dev := flag.Bool("dev", false, "Development mode: debug logs and dev warnings")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Invalid environment, using defaults: %v", err)
		cfg = config.Default()
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	apps, err := loadDescriptors(*pattern)
	if err != nil {
		log.Fatalf("Failed to load app descriptors: %v", err)
	}

	srv, err := server.NewServer(cfg, apps)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}

// loadDescriptors reads every descriptor file matching pattern
func loadDescriptors(pattern string) ([]app.Info, error) {
	if pattern == "" {
		return nil, nil
	}

	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, err
	}

	var apps []app.Info
	for _, path := range paths {
		list, err := host.LoadDescriptors(path)
		if err != nil {
			return nil, err
		}
		apps = append(apps, list...)
	}
	return apps, nil
}
