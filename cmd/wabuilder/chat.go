package main

import (
	"os"

	"github.com/aretw0/wabuilder/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a chatbot from the terminal",
	Long: `Simulates a WhatsApp contact: every line is logged as an incoming message,
routed through the flow, and the reply template is printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		stack, _, _, err := openStack(sigCtx, cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		opts := cli.ChatOptions{Width: 80}
		opts.Config, _ = cmd.Flags().GetString("name")
		opts.Chatbot, _ = cmd.Flags().GetString("chatbot")
		opts.Phone, _ = cmd.Flags().GetString("phone")
		opts.Headless, _ = cmd.Flags().GetBool("headless")

		return cli.Chat(sigCtx, stack.Builder, opts, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	addTargetFlags(chatCmd)
	chatCmd.Flags().String("phone", "", "Phone of the simulated contact")
	chatCmd.Flags().Bool("headless", false, "Plain output without banner or prompts")
}
