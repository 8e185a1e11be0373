// Package cmd implements the centsiblectl command tree: a small operator
// CLI over the auth API, storing its own credential pair through the same
// dual-store layer the app client uses.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/centsible/centsible/client"
	"github.com/centsible/centsible/client/credentials"
)

var (
	serverURL string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:          "centsiblectl",
	Short:        "centsiblectl is a CLI for the centsible auth API",
	Long:         `A command-line interface for exercising the centsible authentication endpoints: signup, login, token refresh, verification and logout.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	defaultDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".centsible")
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the centsible server")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultDir, "directory holding stored credentials")
}

func apiClient() *client.Client {
	return client.NewClient(client.Config{BaseURL: serverURL, Timeout: 10 * time.Second})
}

// credentialStore opens the same bbolt+file pair the orchestrator uses, so
// a token obtained here is visible to anything sharing the config dir.
func credentialStore() (*credentials.DualStore, func(), error) {
	durable, err := credentials.NewBoltStore(filepath.Join(configDir, "credentials.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	flat, err := credentials.NewFileStore(filepath.Join(configDir, "credentials.json"), 0)
	if err != nil {
		durable.Close()
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	cleanup := func() { durable.Close() }
	return credentials.NewDualStore(durable, flat), cleanup, nil
}
