package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/parleybot/parley/pkg/parley/assistant"
)

// newSetupCmd creates the `parley setup` command, an interactive wizard that
// writes the configuration file.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive configuration wizard",
		Long: `Walk through the initial configuration: inference endpoint,
Discord bot token, data directory, and optional text-to-speech.

The Discord token is stored in the system keyring when one is available;
the written config file references it through an environment variable
otherwise.`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := assistant.DefaultConfig()
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = defaultConfigPath
	}

	var (
		discordToken string
		ttsEnabled   bool
		ttsAPIKey    string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Inference endpoint").
				Description("OpenAI-compatible base URL (LM Studio, Ollama, vLLM)").
				Value(&cfg.API.BaseURL),
			huh.NewInput().
				Title("Default model").
				Description("Model name sent when a server has not selected one").
				Value(&cfg.API.DefaultModel),
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&discordToken),
			huh.NewInput().
				Title("Data directory").
				Description("Where guild settings, statistics, and history live").
				Value(&cfg.DataDir),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable text-to-speech voice replies?").
				Value(&ttsEnabled),
			huh.NewInput().
				Title("TTS API key (leave empty for a keyless endpoint)").
				EchoMode(huh.EchoModePassword).
				Value(&ttsAPIKey),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup canceled: %w", err)
	}

	cfg.TTS.Enabled = ttsEnabled
	cfg.TTS.APIKey = ttsAPIKey

	// Prefer the keyring for secrets; the config file then only carries an
	// environment variable reference.
	if discordToken != "" {
		if assistant.KeyringAvailable() {
			if err := assistant.StoreSecret("discord_token", discordToken); err != nil {
				fmt.Printf("Keyring write failed (%v); set DISCORD_BOT_TOKEN instead.\n", err)
			} else {
				fmt.Println("Discord token stored in the system keyring.")
			}
		} else {
			fmt.Println("No keyring available; export DISCORD_BOT_TOKEN before running serve.")
		}
		cfg.Discord.Token = discordToken
	}
	if ttsAPIKey != "" && assistant.KeyringAvailable() {
		if err := assistant.StoreSecret("tts_api_key", ttsAPIKey); err == nil {
			fmt.Println("TTS API key stored in the system keyring.")
		}
	}

	if err := assistant.SaveConfigToFile(cfg, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("\nConfiguration written to %s.\nNext: parley serve\n", path)
	return nil
}
