package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
	"github.com/rezonia/nfe-conferencia/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the conference HTTP API.

The API provides endpoints for:
  - POST /api/v1/login              - Operator login (when JWT_SECRET is set)
  - GET  /api/v1/keys/:key          - Decode an access key offline
  - POST /api/v1/lookup             - Look a key up at the provider
  - POST /api/v1/parse              - Parse an uploaded XML or JSON document
  - GET  /api/v1/provider/ping      - Provider connectivity test
  - GET  /api/v1/conferences        - Polo history with statistics
  - POST /api/v1/conferences        - Save a conference
  - GET  /api/v1/reports/export     - Export history as CSV or XLSX
  - GET  /api/v1/reports/template   - Empty spreadsheet template
  - GET  /health                    - Health check

Without JWT_SECRET the operator and polo are taken from the
X-Operador and X-Polo headers.

Examples:
  # Start with the in-memory store
  conferencia serve

  # Store rows in Google Sheets and cache lookups in Redis
  conferencia serve --store sheets --spreadsheet-id <id> --redis localhost:6379

  # Start in debug mode
  conferencia serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", ":8080", "Server listen address")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 2*time.Minute, "HTTP write timeout")
	addStoreFlags(serveCmd)
	addLookupFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !verbose {
		if l, err := zap.NewProduction(); err == nil {
			logger = l
		}
	}
	defer logger.Sync() //nolint:errcheck

	st, err := buildStack(ctx, true)
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc, closeAuth, err := newAuth(ctx)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	defer closeAuth()

	config := &server.Config{
		Address:      serverAddr,
		Provider:     providerConfig(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Debug:        serverDebug,
	}
	opts := []server.Option{
		server.WithPipeline(st.pipeline),
		server.WithLogger(logger),
		server.WithPinger(meudanfe.NewClient(meudanfe.WithLogger(logger))),
	}
	if authSvc != nil {
		opts = append(opts, server.WithAuth(authSvc))
	}
	srv := server.NewServer(config, opts...)

	httpSrv := &http.Server{
		Addr:         config.Address,
		Handler:      srv.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	fmt.Printf("Starting server on %s\n", serverAddr)
	fmt.Printf("Provider: %s\n", providerURL)
	if authSvc != nil {
		fmt.Println("Login enabled")
	} else {
		fmt.Printf("Login disabled (operator from %s/%s headers)\n", server.HeaderOperator, server.HeaderPolo)
	}

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
