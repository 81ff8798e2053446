package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentsea/turnengine/cmd/ui"
	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/engine/clockid"
	"github.com/agentsea/turnengine/pkg/engine/turnengine"
)

var (
	approvalModeFlag string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Run:   runChat,
}

func init() {
	chatCmd.Flags().StringVar(&approvalModeFlag, "approval-mode", "", "suggest | auto | full-auto (default: suggest)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
	workspaceRoot, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if mode := resolveApprovalMode(); os.Getenv("TURNENGINE_APPROVAL_MODE") == "" {
		os.Setenv("TURNENGINE_APPROVAL_MODE", string(mode))
	}

	eng, registry, err := newTurnEngine(workspaceRoot)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		return
	}

	ctx := context.Background()
	conversationID := clockid.UUIDGenerator{Prefix: "conv"}.NewID()
	registerSubAgentTool(eng, registry, conversationID)

	agentCfg := loadAgentConfig(workspaceRoot, agentFlag)
	if len(agentCfg.EnabledTools) == 0 {
		agentCfg.EnabledTools = registry.Names()
	}
	if modelFlag != "" {
		agentCfg.Model = modelFlag
	}
	if autoApproveFlag {
		agentCfg.RequireToolApproval = false
	}

	printChatBanner(conversationID)

	approver := ui.NewCLIApprover()
	state := &approvalState{autoApproveAll: autoApproveFlag}

	historyMgr, err := NewHistoryManager(workspaceRoot)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize history: %v\n", err)
	}

	var inputHistory []string
	if historyMgr != nil {
		if stored, err := historyMgr.Load(); err == nil {
			inputHistory = stored
		}
	}

	for {
		in, err := ui.ReadInputWithHistory("\n💬 You: ", inputHistory)
		if err != nil {
			fmt.Printf("Input error: %v\n", err)
			return
		}
		if in.Cancelled {
			return
		}

		text := strings.TrimSpace(in.Value)
		if text == "" {
			continue
		}

		if len(inputHistory) == 0 || inputHistory[len(inputHistory)-1] != text {
			inputHistory = append(inputHistory, text)
			if historyMgr != nil {
				go func(t string) {
					_ = historyMgr.Append(t)
				}(text)
			}
		}

		switch strings.ToLower(text) {
		case "/quit", "/exit", "/q":
			fmt.Println("\nGoodbye.")
			return
		case "/help", "/?":
			fmt.Println("\nCommands:")
			fmt.Println("  /compress  Compress conversation history (keep last COMPRESS_KEEP_TURNS turns, default 1)")
			fmt.Println("  /help      Show help")
			fmt.Println("  /quit      Exit")
			continue
		case "/compress":
			fmt.Println("\n🔄 Compressing conversation history...")
			result, err := eng.Compress(ctx, conversationID, turnengine.CompressConfigFromEnv())
			if err != nil {
				fmt.Printf("❌ Compression failed: %v\n", err)
			} else if !result.Compressed {
				fmt.Println("↩︎ History is already short enough, nothing to compress.")
			} else {
				fmt.Printf("✅ Compression complete:\n")
				fmt.Printf("   Messages removed: %d\n", result.MessagesRemoved)
				fmt.Printf("   Messages kept: %d\n", result.MessagesKept)
				fmt.Printf("   Summary length: %d chars\n", len(result.Summary))
			}
			continue
		}

		if err := runTurnWithApprovals(ctx, eng, conversationID, agentCfg, text, approver, state); err != nil {
			fmt.Printf("\n❌ Error: %v\n", err)
		}
	}
}

func resolveApprovalMode() api.ApprovalMode {
	if autoApproveFlag {
		return api.ModeFullAuto
	}
	switch strings.ToLower(strings.TrimSpace(approvalModeFlag)) {
	case "", "suggest":
		return api.ModeSuggest
	case "full-auto", "fullauto":
		return api.ModeFullAuto
	case "auto":
		return api.ModeAuto
	default:
		return api.ModeAuto
	}
}

func printChatBanner(conversationID string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    🤖 Turn Engine Chat                         ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Conversation: %-47s ║\n", conversationID)
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Commands:                                                    ║")
	fmt.Println("║    /help      Show all commands                               ║")
	fmt.Println("║    /compress  Compress history when context is too long       ║")
	fmt.Println("║    /quit      Exit session                                    ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Tips:                                                        ║")
	fmt.Println("║    • Press ESC twice to cancel an in-flight turn              ║")
	fmt.Println("║    • Use /compress if responses slow down (context too long)  ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}
