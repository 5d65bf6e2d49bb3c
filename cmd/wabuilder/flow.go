package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/wabuilder/internal/cli"
	"github.com/aretw0/wabuilder/internal/presentation/graph"
	"github.com/aretw0/wabuilder/internal/presentation/tui"
	"github.com/aretw0/wabuilder/internal/validator"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a chatbot for consistency",
	Long: `Reports dangling routes, templates unreachable from the start template,
invalid patterns and undecodable messages. Reads the stored record unless a file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, err := loadTarget(cmd.Context(), cmd, args)
		if err != nil {
			return err
		}
		if err := validator.ValidateChatbot(bot); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Chatbot %q is valid! ✅\n", bot.Name)
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph [file]",
	Short: "Export the flow graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of a chatbot, optionally highlighting the path of one contact.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bot, err := loadTarget(ctx, cmd, args)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if phone, _ := cmd.Flags().GetString("phone"); phone != "" {
			stack, _, _, err := openStack(ctx, cmd)
			if err != nil {
				return err
			}
			defer stack.Close()
			history, err := stack.Builder.History(ctx, phone, 0)
			if err != nil {
				return err
			}
			overlay = graph.OverlayFromHistory(history)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(bot, overlay))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Print a report of a chatbot's templates and issues",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, err := loadTarget(cmd.Context(), cmd, args)
		if err != nil {
			return err
		}
		report := tui.Report(bot, validator.Issues(validator.ValidateChatbot(bot)))

		out := cmd.OutOrStdout()
		if raw, _ := cmd.Flags().GetBool("raw"); !raw && tui.IsTerminal(out) {
			if rendered, err := tui.NewRenderer(100)(report); err == nil {
				report = rendered
			}
		}
		fmt.Fprint(out, report)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a stored chatbot as a JSON or YAML file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stack, _, _, err := openStack(ctx, cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		name, _ := cmd.Flags().GetString("name")
		chatbot, _ := cmd.Flags().GetString("chatbot")
		output, _ := cmd.Flags().GetString("output")

		bot, _, err := stack.Builder.Chatbot(ctx, name, chatbot)
		if err != nil {
			return err
		}
		filename := output
		if filename == "" {
			filename = bot.Name + ".json"
		}
		data, err := stack.Builder.ExportFlow(ctx, name, bot.Name, filename)
		if err != nil {
			return err
		}
		if output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return err
		}
		cli.PrintSystemMessage(cmd.ErrOrStderr(), "Exported %q to %s", bot.Name, output)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace a stored chatbot with the templates of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		stack, _, _, err := openStack(ctx, cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		name, _ := cmd.Flags().GetString("name")
		chatbot, _ := cmd.Flags().GetString("chatbot")
		if err := ensureRecord(ctx, stack, name); err != nil {
			return err
		}

		diff, err := stack.Builder.ImportFlow(ctx, name, chatbot, filepath.Base(args[0]), data)
		if err != nil {
			return err
		}
		cli.PrintSystemMessage(cmd.OutOrStdout(), "Imported %q: %d added, %d removed, %d changed",
			diff.Chatbot, len(diff.Added), len(diff.Removed), len(diff.Changed))
		return nil
	},
}

// ensureRecord creates an empty record so a first import has somewhere to land.
func ensureRecord(ctx context.Context, stack *cli.Stack, name string) error {
	_, err := stack.Builder.GetConfig(ctx, name)
	if !errors.Is(err, domain.ErrConfigNotFound) {
		return err
	}
	return stack.Builder.UpdateConfig(ctx, &domain.BotConfig{Name: name})
}

func init() {
	for _, cmd := range []*cobra.Command{validateCmd, graphCmd, inspectCmd, exportCmd, importCmd} {
		addTargetFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	graphCmd.Flags().String("phone", "", "Highlight the templates sent to this contact")
	inspectCmd.Flags().Bool("raw", false, "Print markdown without terminal rendering")
	exportCmd.Flags().StringP("output", "o", "", "Write to this file; .yaml or .yml selects YAML")

}
