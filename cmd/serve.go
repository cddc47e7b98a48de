package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-gauge/internal/kserve"
	mcptools "github.com/giantswarm/llm-gauge/internal/mcp"
	"github.com/giantswarm/llm-gauge/internal/runner"
	"github.com/giantswarm/llm-gauge/internal/server"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

func newServeCmd() *cobra.Command {
	var (
		transport    string
		httpAddr     string
		httpEndpoint string
		inCluster    bool
		outputDir    string
		dataDir      string
		testsDir     string
		workers      int
		judge        judgeFlags

		enableOAuth bool
		oauthCfg    server.OAuthConfig
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server to run tests, read their records and manage KServe
SUT models via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default, for IDE integration)
  - streamable-http: HTTP with streaming support (for remote access)

When using streamable-http transport, OAuth 2.1 authentication can be enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, _ := cmd.Flags().GetString("namespace")
			kubeconfig, _ := cmd.Flags().GetString("kubeconfig")

			sc := &server.ServerContext{
				Judge:      judge.client(),
				Namespace:  namespace,
				OutputDir:  outputDir,
				DataDir:    dataDir,
				TestsDir:   testsDir,
				RunOptions: []runner.Option{runner.WithWorkers(workers)},
			}

			ksManager, err := kserve.NewManager(namespace, kubeconfig, inCluster)
			if err != nil {
				slog.Warn("KServe manager not available", "error", err)
			} else {
				sc.KServeManager = ksManager
			}

			mcpSrv := mcpserver.NewMCPServer("llm-gauge", rootCmd.Version,
				mcpserver.WithToolCapabilities(true),
			)
			if err := mcptools.RegisterTools(mcpSrv, sc); err != nil {
				return fmt.Errorf("failed to register MCP tools: %w", err)
			}

			shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			switch transport {
			case transportStdio:
				if err := mcpserver.ServeStdio(mcpSrv); err != nil {
					return fmt.Errorf("server stopped with error: %w", err)
				}
				return nil
			case transportStreamableHTTP:
				var oauth *server.OAuthConfig
				if enableOAuth {
					oauthCfg.ApplyEnv()
					oauth = &oauthCfg
				}
				httpSrv, err := server.NewHTTPServer(mcpSrv, httpEndpoint, oauth)
				if err != nil {
					return fmt.Errorf("failed to create HTTP server: %w", err)
				}
				return httpSrv.Serve(shutdownCtx, httpAddr)
			default:
				return fmt.Errorf("unsupported transport: %s (supported: stdio, streamable-http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http)")
	cmd.Flags().StringVar(&httpEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http)")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for test records")
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "Directory for caches and downloaded dependencies")
	cmd.Flags().StringVar(&testsDir, "tests-dir", "", "External tests directory (optional)")
	cmd.Flags().IntVar(&workers, "workers", 1, "Default number of test items processed concurrently per run")
	judge.addTo(cmd)

	cmd.Flags().BoolVar(&enableOAuth, "enable-oauth", false, "Enable OAuth 2.1 authentication (for HTTP transport)")
	cmd.Flags().StringVar(&oauthCfg.BaseURL, "oauth-base-url", "", "OAuth base URL (e.g. https://llm-gauge.example.com)")
	cmd.Flags().StringVar(&oauthCfg.Provider, "oauth-provider", server.OAuthProviderDex, "OAuth provider: dex")
	cmd.Flags().StringVar(&oauthCfg.DexIssuerURL, "dex-issuer-url", "", "Dex OIDC issuer URL")
	cmd.Flags().StringVar(&oauthCfg.DexClientID, "dex-client-id", "", "Dex OAuth client ID")
	cmd.Flags().StringVar(&oauthCfg.DexClientSecret, "dex-client-secret", "", "Dex OAuth client secret")

	return cmd
}
