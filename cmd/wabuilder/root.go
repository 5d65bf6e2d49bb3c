package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/wabuilder/internal/cli"
	"github.com/aretw0/wabuilder/internal/config"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wabuilder",
	Short: "wabuilder is the backend of a WhatsApp chatbot builder",
	Long: `wabuilder stores chatbot flow documents, answers WhatsApp webhooks by
routing messages through them, and exposes the editor operations over HTTP and MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the wabuilder config file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the config file)")
}

// loadConfig reads the config file and applies the --log-level flag.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	logger, err := cli.NewLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// openStack builds the Builder described by the config file.
func openStack(ctx context.Context, cmd *cobra.Command) (*cli.Stack, config.Config, *slog.Logger, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, nil, err
	}
	stack, err := cli.Open(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, nil, err
	}
	return stack, cfg, logger, nil
}

// loadTarget returns the chatbot named by --chatbot, from file when one is given
// and from the stored record named by --name otherwise.
func loadTarget(ctx context.Context, cmd *cobra.Command, args []string) (domain.Chatbot, error) {
	chatbot, _ := cmd.Flags().GetString("chatbot")
	if len(args) > 0 {
		return cli.LoadChatbot(args[0], chatbot)
	}

	stack, _, _, err := openStack(ctx, cmd)
	if err != nil {
		return domain.Chatbot{}, err
	}
	defer stack.Close()

	name, _ := cmd.Flags().GetString("name")
	bot, notices, err := stack.Builder.Chatbot(ctx, name, chatbot)
	if err != nil {
		return domain.Chatbot{}, err
	}
	for _, n := range notices {
		cli.PrintSystemMessage(cmd.ErrOrStderr(), "%s: %s", n.Level, n.Message)
	}
	return bot, nil
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Configuration record (defaults to config_name)")
	cmd.Flags().String("chatbot", "", "Chatbot name (defaults to the first chatbot)")
}
