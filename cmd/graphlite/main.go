// Package main provides the GraphLite CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/deepgraph/graphlite/pkg/config"
	"github.com/deepgraph/graphlite/pkg/graphlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphlite",
		Short: "GraphLite - Embeddable Graph Database with GQL Queries",
		Long: `GraphLite is a lightweight graph database written in Go.

It stores labeled nodes and typed edges with arbitrary properties,
and answers GQL queries (MATCH / INSERT / SET / REMOVE / DELETE)
through session-scoped connections. Data lives in memory or in an
embedded Badger store on disk.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("GraphLite v%s\n", graphlite.Version())
		},
	})

	// Init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new GraphLite database",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./graphlite-data", "Data directory")
	rootCmd.AddCommand(initCmd)

	// Query command
	queryCmd := &cobra.Command{
		Use:   "query [gql]",
		Short: "Run a single query and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	queryCmd.Flags().Bool("memory", false, "Use a volatile in-memory database")
	rootCmd.AddCommand(queryCmd)

	// Shell command
	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive GQL shell",
		RunE:  runShell,
	}
	shellCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	shellCmd.Flags().Bool("memory", false, "Use a volatile in-memory database")
	rootCmd.AddCommand(shellCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file with command-line overrides and
// builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if cmd.Flags().Lookup("data-dir") != nil {
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			cfg.DataDir = dir
		}
	}
	if cmd.Flags().Lookup("memory") != nil {
		if mem, _ := cmd.Flags().GetBool("memory"); mem {
			cfg.InMemory = true
		}
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return cfg, log, nil
}

func openDB(cfg *config.Config, log *logrus.Logger) (*graphlite.DB, error) {
	return graphlite.Open(cfg.Path(), &graphlite.Options{
		SyncWrites:  cfg.SyncWrites,
		MaxSessions: cfg.MaxSessions,
		Logger:      log,
	})
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("data-dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	db, err := graphlite.Open(dir, nil)
	if err != nil {
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}

	fmt.Printf("Initialized GraphLite database in %s\n", dir)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	token, err := db.CreateSession("cli")
	if err != nil {
		return err
	}
	defer db.CloseSession(token)

	result, err := db.Execute(cmd.Context(), token, args[0])
	if err != nil {
		return err
	}
	encoded, err := graphlite.EncodeResult(result)
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	token, err := db.CreateSession("shell")
	if err != nil {
		return err
	}
	defer db.CloseSession(token)

	fmt.Printf("GraphLite v%s - type queries, \\q to quit\n", graphlite.Version())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("gql> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "\\q" || line == "exit" || line == "quit" {
			break
		}

		result, err := db.Execute(context.Background(), token, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		encoded, err := graphlite.EncodeResult(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(encoded)
	}
	return scanner.Err()
}
