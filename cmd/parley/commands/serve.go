package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/parleybot/parley/pkg/parley/assistant"
	"github.com/parleybot/parley/pkg/parley/channels/discord"
	"github.com/parleybot/parley/pkg/parley/tts"
)

// newServeCmd creates the `parley serve` command that starts the gateway.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Discord gateway",
		Long: `Connect to Discord and process messages through the assistant
pipeline until interrupted.

Examples:
  parley serve
  parley serve --config ./parley.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)
	logger.Info("starting parley", "config", configPath, "data_dir", cfg.DataDir)

	if cfg.Discord.Token == "" {
		return fmt.Errorf("no Discord token configured: run `parley setup` or set DISCORD_BOT_TOKEN")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// ── Stores ──
	history, err := assistant.OpenSQLiteHistory(cfg.HistoryDBPath(), logger)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer history.Close()

	guilds, err := assistant.NewGuildConfigStore(cfg.GuildConfigPath(), logger)
	if err != nil {
		return fmt.Errorf("loading guild configuration: %w", err)
	}
	stats, err := assistant.NewStatsStore(cfg.StatsPath(), logger)
	if err != nil {
		return fmt.Errorf("loading statistics: %w", err)
	}
	sessions := assistant.NewConversationStore(cfg.History, history, logger)

	// ── Pipeline stages ──
	limiter := assistant.NewRateLimiter(time.Duration(cfg.Search.CooldownSeconds) * time.Second)
	search := assistant.NewSearchClient(time.Duration(cfg.Timeouts.Search)*time.Second, cfg.Search.MaxResults, logger)
	fetcher := assistant.NewFetcher(time.Duration(cfg.Timeouts.Fetch)*time.Second, cfg.Search.MaxURLChars, logger)
	attachments := assistant.NewAttachmentProcessor(cfg.Files, logger)
	augmenter := assistant.NewAugmenter(search, fetcher, attachments, limiter, logger)
	llm := assistant.NewLLMClient(cfg.API, logger)

	var speech tts.Provider
	if cfg.TTS.Enabled {
		speech = tts.NewOpenAIProvider(cfg.TTS, time.Duration(cfg.Timeouts.TTS)*time.Second)
	}

	bot := assistant.New(*cfg, guilds, sessions, stats, augmenter, llm, speech, logger)
	commander := assistant.NewCommander(guilds, sessions, stats, llm)

	// ── Discord channel ──
	dc := discord.New(discord.Config{
		Token:      cfg.Discord.Token,
		SendTyping: cfg.Discord.SendTyping,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dc.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to Discord: %w", err)
	}
	defer dc.Disconnect()

	if err := dc.RegisterSlashCommands(commander, guilds); err != nil {
		logger.Error("slash command registration failed", "error", err)
	}

	// ── Maintenance schedule ──
	maxIdle := time.Duration(cfg.History.InactivityDays) * 24 * time.Hour
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 5m", func() {
		if err := stats.Flush(); err != nil {
			logger.Warn("stats flush failed", "error", err)
		}
		if err := guilds.Flush(); err != nil {
			logger.Warn("guild config flush failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling flush job: %w", err)
	}
	if _, err := scheduler.AddFunc("@daily", func() {
		pruned := sessions.Prune(maxIdle)
		if pruned > 0 {
			logger.Info("pruned idle conversations", "count", pruned)
		}
		limiter.Prune(24 * time.Hour)
	}); err != nil {
		return fmt.Errorf("scheduling prune job: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	go bot.Run(ctx, dc)
	logger.Info("parley is running", "press", "Ctrl+C to stop")

	// ── Wait for shutdown ──
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	cancel()

	if err := stats.Flush(); err != nil {
		logger.Warn("final stats flush failed", "error", err)
	}
	if err := guilds.Flush(); err != nil {
		logger.Warn("final guild config flush failed", "error", err)
	}
	return nil
}
