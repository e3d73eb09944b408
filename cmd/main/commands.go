package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"harbor/internal/config"
	"harbor/internal/logging"
	"harbor/internal/secrets"
	"harbor/internal/services"
	"harbor/pkg/models"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the Harbor host",
		Long:  "Start every tool server in the manifest and keep the fleet running until interrupted",
		RunE:  runServe,
	}

	callCmd = &cobra.Command{
		Use:   "call [tool]",
		Short: "Invoke a single tool",
		Long:  "Start the clients the tool needs, invoke it once, print the result, and shut down",
		Args:  cobra.ExactArgs(1),
		RunE:  runCall,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the components the fleet exposes",
		RunE:  runList,
	}
)

// buildHost assembles the host from the environment and the fleet manifest.
// Eager clients are started immediately; lazy ones are parked for JIT
// activation.
func buildHost(ctx context.Context, manifestFlag string) (*services.Host, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Debug && !logging.IsDebugEnabled() {
		logging.Initialize(true)
	}

	manifestPath := cfg.ManifestPath
	if manifestFlag != "" {
		manifestPath = manifestFlag
	}
	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := secrets.New(cfg.EncryptionKey, secrets.WithWorkers(cfg.SecretWorkers))
	if err != nil {
		return nil, nil, err
	}
	host := services.NewHost(store,
		services.WithHandshakeTimeout(time.Duration(cfg.HandshakeTimeout)*time.Second))

	for _, descriptor := range manifest.Descriptors() {
		if descriptor.Lazy {
			if err := host.AddStaticClient(descriptor); err != nil {
				return nil, nil, err
			}
			continue
		}
		if err := host.RegisterClient(ctx, descriptor); err != nil {
			logging.Error("failed to start client %s: %v", descriptor.ID, err)
			fmt.Printf("⚠️  Client %s failed to start: %v\n", descriptor.ID, err)
		}
	}
	return host, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	manifestFlag, _ := cmd.Flags().GetString("manifest")

	fmt.Printf("🚀 Starting Harbor...\n")

	ctx := context.Background()
	host, cfg, err := buildHost(ctx, manifestFlag)
	if err != nil {
		return err
	}

	components := host.ListComponents(nil)
	fmt.Printf("\n✅ Harbor is running: %d components available\n", len(components))
	fmt.Printf("Press Ctrl+C to stop\n\n")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	fmt.Println("\n🛑 Received shutdown signal, stopping fleet...")

	grace := time.Duration(cfg.ShutdownGraceSecs) * time.Second
	if grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := host.Shutdown(shutdownCtx); err != nil {
		return err
	}
	fmt.Println("✅ All clients stopped")
	return nil
}

func runCall(cmd *cobra.Command, args []string) error {
	toolName := args[0]
	manifestFlag, _ := cmd.Flags().GetString("manifest")
	rawArgs, _ := cmd.Flags().GetString("args")
	allow, _ := cmd.Flags().GetStringSlice("allow")

	var toolArgs map[string]interface{}
	if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
		return fmt.Errorf("invalid --args JSON: %w", err)
	}

	ctx := context.Background()
	host, _, err := buildHost(ctx, manifestFlag)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		host.Shutdown(shutdownCtx)
	}()

	var callerPolicy *models.CallerPolicy
	if len(allow) > 0 {
		callerPolicy = &models.CallerPolicy{AllowClients: allow}
	}

	result, err := host.ExecuteTool(ctx, callerPolicy, toolName, toolArgs)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manifestFlag, _ := cmd.Flags().GetString("manifest")

	ctx := context.Background()
	host, _, err := buildHost(ctx, manifestFlag)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		host.Shutdown(shutdownCtx)
	}()

	components := host.ListComponents(nil)
	if len(components) == 0 {
		fmt.Println("No components available")
		return nil
	}

	for _, component := range components {
		if component.Description != "" {
			fmt.Printf("%-8s %-32s %s\n", component.Kind, component.Name, component.Description)
			continue
		}
		fmt.Printf("%-8s %s\n", component.Kind, component.Name)
	}
	return nil
}
