package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/logops/internal/auth"
	"github.com/dbsmedya/logops/internal/chat"
)

var (
	chatRole   string
	chatRegion string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Start an interactive chat session",
	Long: `Chat opens an interactive terminal session against the lifecycle
controller. Messages go through the same pipeline as the HTTP API:
intent routing, permission checks and the preview-and-confirm flow.

With a message argument it sends that single message and exits.
Type 'exit' or 'quit' to leave an interactive session.

Examples:
  logops chat --config logops.yaml --role admin --region US
  logops chat "show stats for all tables"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatRole, "role", auth.RoleAdmin,
		"Session role (admin, monitor)")
	chatCmd.Flags().StringVar(&chatRegion, "region", "",
		"Target region (defaults to the first available region)")

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !auth.IsValidRole(chatRole) {
		return fmt.Errorf("unknown role %q", chatRole)
	}

	region := chatRegion
	if region == "" {
		region = a.regions.DefaultRegion(ctx)
	}
	if !a.regions.IsValid(ctx, region) {
		return fmt.Errorf("unknown region %q (available: %s)",
			region, strings.Join(a.regions.AvailableRegions(ctx), ", "))
	}

	sessionID := uuid.NewString()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		resp := a.orch.Handle(ctx, chat.Request{
			SessionID: sessionID,
			Region:    region,
			Role:      chatRole,
			Message:   args[0],
		})
		renderResponse(out, resp)
		return nil
	}

	color.Fprintf(out, "<cyan>logops</> chat session %s\n", sessionID)
	fmt.Fprintf(out, "Region: %s  Role: %s  (type 'exit' to quit)\n\n", region, chatRole)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		color.Fprintf(out, "<green>you></> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			break
		}

		resp := a.orch.Handle(ctx, chat.Request{
			SessionID: sessionID,
			Region:    region,
			Role:      chatRole,
			Message:   message,
		})
		renderResponse(out, resp)
		fmt.Fprintln(out)
	}

	return scanner.Err()
}
