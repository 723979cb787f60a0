package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/openmemory/internal/mcp"
	"github.com/rcliao/openmemory/internal/server"
)

func init() {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio",
		Long:  "Speak newline-delimited JSON-RPC (MCP) on stdin/stdout. Logs go to stderr.",
		Run:   runServe,
	}

	httpCmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the HTTP, JSON-RPC and websocket endpoints",
		Run:   runHTTP,
	}
	httpCmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")

	RootCmd.AddCommand(serve, httpCmd)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open store", err)
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	rpc := mcp.NewServer(a.d, a.log.With("component", "mcp"), Version)
	a.log.Info("mcp stdio server started", "metadata_db", a.cfg.MetadataDB, "index_db", a.cfg.IndexDB)
	errc := make(chan error, 1)
	go func() { errc <- rpc.Serve(ctx, os.Stdin, os.Stdout) }()

	// A blocked stdin read does not observe ctx, so a signal returns without
	// waiting for Serve.
	select {
	case err := <-errc:
		if err != nil && ctx.Err() == nil {
			a.Close()
			exitErr("serve", err)
		}
	case <-ctx.Done():
		a.log.Info("mcp stdio server stopping")
	}
}

func runHTTP(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open store", err)
	}
	defer a.Close()

	addr := a.cfg.HTTP.Addr
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	rpc := mcp.NewServer(a.d, a.log.With("component", "mcp"), Version)
	srv := server.New(a.d, rpc, a.log.With("component", "http"))
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		a.Close()
		exitErr("http", err)
	}
}
