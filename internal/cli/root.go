// Package cli implements the openmemory CLI commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/openmemory/internal/cache"
	"github.com/rcliao/openmemory/internal/config"
	"github.com/rcliao/openmemory/internal/dispatch"
	"github.com/rcliao/openmemory/internal/engine"
	"github.com/rcliao/openmemory/internal/logging"
	"github.com/rcliao/openmemory/internal/store"
)

// Version is reported by the MCP server and --version.
var Version = "dev"

var (
	configPath string
	dataDir    string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:     "openmemory",
	Short:   "Long-term memory for AI agents",
	Long:    "Persistent memory for AI agents. Records live in a SQLite metadata store and an FTS5 lexical index, served over MCP stdio, HTTP and websockets.",
	Version: Version,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.openmemory/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory (default: $OPENMEMORY_DATA_DIR or ~/.openmemory)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// app holds everything a command needs. Close releases both databases.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	meta  *store.SQLiteStore
	index *store.FTSIndex
	eng   *engine.Engine
	d     *dispatch.Dispatcher
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}

	meta, err := store.NewSQLiteStore(cfg.MetadataDB)
	if err != nil {
		return nil, fmt.Errorf("metadata store: %w", err)
	}
	index, err := store.NewFTSIndex(cfg.IndexDB)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("lexical index: %w", err)
	}

	opts := cfg.EngineOptions()
	opts.Logger = logger.With("component", "engine")
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.MaxRecords)
		if err != nil {
			meta.Close()
			index.Close()
			return nil, fmt.Errorf("cache: %w", err)
		}
		opts.Cache = c
	}

	eng := engine.New(meta, index, opts)
	return &app{
		cfg:   cfg,
		log:   logger,
		meta:  meta,
		index: index,
		eng:   eng,
		d:     dispatch.New(eng, logger.With("component", "dispatch")),
	}, nil
}

func (a *app) Close() error {
	if a.eng.Options().Cache != nil {
		a.eng.Options().Cache.Close()
	}
	return errors.Join(a.index.Close(), a.meta.Close())
}

// runTool calls a tool through the dispatcher and prints its envelope. A
// failed call exits 1.
func runTool(cmd *cobra.Command, name string, args map[string]any) {
	raw, err := json.Marshal(args)
	if err != nil {
		exitErr(name, err)
	}
	a, err := openApp()
	if err != nil {
		exitErr("open store", err)
	}
	resp := a.d.Call(cmd.Context(), name, raw)
	a.Close()

	printJSON(cmd, resp)
	if !resp.OK {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
