// Command-line entrypoint: practice conversations in the terminal and admin tokens.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"salesbot/salesbot/config"
	"salesbot/salesbot/controllers"
	"salesbot/salesbot/middlewares"
	"salesbot/salesbot/services/llm"
	"salesbot/salesbot/services/notifier"
	"salesbot/salesbot/services/persona"
	"salesbot/salesbot/sources/psql"
	"salesbot/salesbot/sources/psql/dao"
	"salesbot/salesbot/utils/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadConfig()

	root := &cobra.Command{
		Use:          "salesbot",
		Short:        "Sales practice chatbot tools",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitLogger(cfg.LogDir)
		},
	}
	root.AddCommand(newChatCmd(cfg))
	root.AddCommand(newTokenCmd(cfg))
	return root
}

func newChatCmd(cfg config.Config) *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "chat USERNAME",
		Short: "Start a session and talk to the persona from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// replies are printed here, never posted to a channel
			cfg.Notifier = config.NotifierLog
			if err := cfg.ValidateClients(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			db, err := psql.NewDatabase(ctx, cfg)
			if err != nil {
				return fmt.Errorf("database connection error: %w", err)
			}
			defer db.Close()

			llmClient, err := llm.NewClient(context.Background(), cfg)
			if err != nil {
				return err
			}
			personas, err := persona.LoadCatalog(cfg.PersonaFile)
			if err != nil {
				return err
			}
			ctrl := terminalController(dao.NewChatDAO(db.DB), llmClient, personas, cfg)
			return runREPL(cmd.Context(), ctrl, args[0], level, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "basico", "customer level: basico, medio or complejo")
	return cmd
}

// terminalController discards posts: the REPL prints each reply itself and
// the app log tees to stdout, so logging them would print every reply twice.
func terminalController(chatDAO *dao.ChatDAO, llmClient llm.Client, personas *persona.Catalog, cfg config.Config) *controllers.ChatController {
	return controllers.NewChatController(chatDAO, llmClient, notifier.Discard{}, personas, nil, controllers.ChatOptions{
		Model:       cfg.Model(),
		Channel:     "terminal",
		DisplayName: cfg.BotDisplayName,
	})
}

func runREPL(ctx context.Context, ctrl *controllers.ChatController, username, level string, in io.Reader, out io.Writer) error {
	created, err := ctrl.CreateSession(ctx, username, level)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, created)
	fmt.Fprintln(out, "Type your pitch or 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			break
		}
		if line == "" {
			continue
		}
		reply, err := ctrl.ChatBot(ctx, username, line)
		if err != nil {
			logging.ErrorLogger.Error("chat failed", zap.String("username", username), zap.Error(err))
			fmt.Fprintln(out, "error:", err)
			continue
		}
		fmt.Fprintln(out, "customer>", reply)
	}
	return scanner.Err()
}

func newTokenCmd(cfg config.Config) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token SUBJECT",
		Short: "Mint an admin token for the history API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.AdminJWTSecret == "" {
				return fmt.Errorf("ADMIN_JWT_SECRET is not set")
			}
			token, err := middlewares.IssueAdminToken(cfg.AdminJWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
