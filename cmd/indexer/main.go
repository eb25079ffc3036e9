package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/config"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/metrics"
	"github.com/prediction-market/callindexor/internal/orchestrator"
	_ "github.com/prediction-market/callindexor/internal/poller" // registers the chain indexers
	"github.com/prediction-market/callindexor/internal/sink"
	"github.com/prediction-market/callindexor/internal/store"
	"github.com/prediction-market/callindexor/pkg/api"
	pkgconfig "github.com/prediction-market/callindexor/pkg/config"
	"github.com/prediction-market/callindexor/pkg/indexer"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║            CallIndexor v%s             ║
║   Prediction-market event indexer         ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	resetChain string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "CallIndexor - prediction-market event indexer",
	Long: `CallIndexor polls the prediction-market contracts on Base and Stellar/Soroban,
decodes their events into a single schema and keeps a queryable read model of
calls, stakes and outcomes.`,
	Version: version,
	RunE:    runIndexer,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available chain indexers",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Available chain indexers:")
		chains := indexer.ListRegistered()
		if len(chains) == 0 {
			fmt.Println("  (no indexers registered)")
			return
		}
		for _, c := range chains {
			fmt.Printf("  - %s\n", c)
		}
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &jsonschema.Reflector{FieldNameTag: "json"}
		out, err := json.MarshalIndent(r.Reflect(&pkgconfig.Config{}), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor",
	Short: "Forget the persisted cursor of a chain",
	Long: `Deletes the stored cursor of one chain so the next run starts from the
configured start height, or from the chain default when none is configured.
Stop the indexer before running it.`,
	RunE: runResetCursor,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	resetCursorCmd.Flags().StringVar(&resetChain, "chain", "", "chain whose cursor is reset (base or stellar)")
	_ = resetCursorCmd.MarkFlagRequired("chain")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) error {
	chain, err := common.ParseChain(resetChain)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Logging == nil {
		cfg.Logging = &pkgconfig.LoggingConfig{}
		cfg.Logging.ApplyDefaults()
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.DB, logger.NewComponentLoggerFromConfig(common.ComponentStore, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.ResetCursor(ctx, chain); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cursor of %s reset\n", chain)
	return nil
}

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Logging == nil {
		cfg.Logging = &pkgconfig.LoggingConfig{}
		cfg.Logging.ApplyDefaults()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(common.ComponentOrchestrator, cfg.Logging)
	defer func() { _ = log.Close() }()

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
	}

	log.Info("Opening read model database...")
	st, err := store.Open(ctx, cfg.DB, logger.NewComponentLoggerFromConfig(common.ComponentStore, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warnf("Failed to close store: %v", err)
		}
	}()

	if err := st.Maintenance().Start(ctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}

	eventSink := sink.New(st, logger.NewComponentLoggerFromConfig(common.ComponentSink, cfg.Logging))
	mci := orchestrator.New(st, eventSink, log)

	if err := mci.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize indexers: %w", err)
	}

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(
			cfg.API,
			mci,
			logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging),
		)
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
				cancel()
			}
		}()
	}

	log.Info("Starting CallIndexor...")
	if err := mci.Start(ctx); err != nil {
		return fmt.Errorf("failed to start indexers: %w", err)
	}

	<-ctx.Done()

	if err := mci.Stop(context.Background()); err != nil {
		log.Warnf("Failed to stop indexers: %v", err)
	}

	log.Info("CallIndexor stopped successfully")
	return nil
}
