package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearSessionCmd = &cobra.Command{
	Use:   "clear-session",
	Short: "Drop every cached session entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, _, _, err := openStack(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		n, err := stack.Builder.ClearSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d session keys.\n", n)
		return nil
	},
}

var webhookURLCmd = &cobra.Command{
	Use:   "webhook-url",
	Short: "Print the URL to register as the WhatsApp webhook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, _, _, err := openStack(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		site, _ := cmd.Flags().GetString("site")
		fmt.Fprintln(cmd.OutOrStdout(), stack.Builder.WebhookURL(site))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearSessionCmd, webhookURLCmd)
	webhookURLCmd.Flags().String("site", "http://localhost:8080", "Public origin, used when site_url is not configured")
}
