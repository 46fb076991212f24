package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/parleybot/parley/pkg/parley/assistant"
)

// localChatID is the conversation scope for the terminal session.
const localChatID = "local"

// newChatCmd creates the `parley chat` command, a terminal conversation with
// the same pipeline the Discord gateway uses.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant from the terminal",
		Long: `Start an interactive conversation against the configured
inference endpoint, without connecting to Discord.

Inside the session:
  /reset     clear the conversation
  /history   show recent turns
  /models    list models on the endpoint
  /model X   select a model
  /quit      exit`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	llm := assistant.NewLLMClient(cfg.API, logger)
	sessions := assistant.NewConversationStore(cfg.History, nil, logger)
	guilds, err := assistant.NewGuildConfigStore(cfg.GuildConfigPath(), logger)
	if err != nil {
		return fmt.Errorf("loading guild configuration: %w", err)
	}

	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Parley terminal chat. Endpoint: %s. Type /quit to exit.\n\n", cfg.API.BaseURL)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := runChatCommand(cmd.Context(), line, llm, sessions, guilds); done {
				return nil
			}
			continue
		}

		guildCfg := guilds.Get(localChatID)
		history := sessions.ContextWindow(localChatID)
		req := assistant.AssembleRequest(guildCfg, cfg.API.DefaultModel, history, line, assistant.AugmentationPlan{})
		sessions.AppendUserTurn(localChatID, assistant.Turn{Content: line})

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Timeouts.Inference)*time.Second)
		resp, err := llm.Complete(ctx, req)
		cancel()
		if err != nil {
			fmt.Printf("error: %v\n\n", err)
			continue
		}

		reply := assistant.StripReasoning(resp.Content)
		sessions.AppendAssistantTurn(localChatID, assistant.Turn{Content: reply})
		fmt.Printf("\n%s\n\n", reply)
	}
}

// runChatCommand handles the in-session slash commands. Returns true when
// the session should end.
func runChatCommand(ctx context.Context, line string, llm *assistant.LLMClient, sessions *assistant.ConversationStore, guilds *assistant.GuildConfigStore) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/reset":
		sessions.Clear(localChatID)
		fmt.Println("Conversation cleared.")
	case "/history":
		turns := sessions.ContextWindow(localChatID)
		if len(turns) == 0 {
			fmt.Println("No history yet.")
			break
		}
		for _, t := range turns {
			fmt.Printf("[%s] %s\n", t.Role, t.Content)
		}
	case "/models":
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		models, err := llm.ListModels(reqCtx)
		cancel()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, m := range models {
			fmt.Println("-", m)
		}
	case "/model":
		if arg == "" {
			fmt.Println("Usage: /model <name>")
			break
		}
		if err := guilds.SetModel(localChatID, arg); err != nil {
			fmt.Println(err)
			break
		}
		fmt.Printf("Model set to %s.\n", arg)
	default:
		fmt.Println("Unknown command. Available: /reset /history /models /model /quit")
	}
	fmt.Println()
	return false
}
