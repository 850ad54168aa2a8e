package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"velvetrope/internal/agents"
	"velvetrope/internal/config"
	"velvetrope/internal/engine"
	"velvetrope/internal/game"
	"velvetrope/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "velvetrope",
	Short: "velvetrope - talk your way past Viktor, the doorman of The Golden Palm",
	Long: `velvetrope runs a single-player persuasion game: convince Viktor, the
doorman of Dubai's most exclusive nightclub, to let you in. Every message you
send is scored by a hidden judge; reach 100 and the rope opens, hit -50 and
you're done for the night.

Subcommands run the HTTP API (serve), a terminal session against the engine
(play), or list stored games (sessions).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "velvetrope.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// buildEngine wires the full stack from config: sqlite store, chat client,
// gateway, engine. The caller owns closing the returned store.
func buildEngine() (*engine.Engine, *store.SQLiteStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	client := agents.NewClient(agents.ClientConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout.Std(),
		MaxRetries: cfg.LLM.MaxRetries,
	}, logger.Named("llm"))

	gateway := agents.NewGateway(client, agents.GatewayConfig{
		DoormanModel:   cfg.LLM.DoormanModel,
		JudgeModel:     cfg.LLM.JudgeModel,
		CompactorModel: cfg.LLM.CompactorModel,
		JSONRetries:    cfg.LLM.JSONRetries,
	}, logger.Named("agents"))

	eng := engine.New(st, gateway, engine.Config{
		StartingScore:       cfg.Game.StartingScore,
		RecentWindow:        cfg.Game.RecentWindow,
		CompactionThreshold: cfg.Game.CompactionThreshold,
		Scoring: game.Scoring{
			Win:      cfg.Game.WinThreshold,
			Lose:     cfg.Game.LoseThreshold,
			MaxDelta: cfg.Game.MaxDeltaPerTurn,
		},
	}, logger.Named("engine"))

	return eng, st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
