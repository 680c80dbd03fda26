package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/credentials"
	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/pkg/telegram"
)

var (
	sessionName     string
	sessionAPIID    int
	sessionAPIHash  string
	sessionPhone    string
	sessionPassword string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage Telegram sessions used for rotation",
}

var sessionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Log in a new account and append it to the credentials file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("session"); err != nil {
			return err
		}
		if sessionAPIID == 0 || sessionAPIHash == "" || sessionPhone == "" {
			return eris.New("--api-id, --api-hash and --phone are required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		file := credentials.NewFile(cfg.Credentials.Path)
		name := sessionName
		if name == "" {
			next, err := file.NextName()
			if err != nil {
				return err
			}
			name = next
		}
		cred := model.Credential{Name: name, APIID: sessionAPIID, APIHash: sessionAPIHash}

		conn := telegram.NewConnector(cfg.Telegram())
		self, err := conn.Login(ctx, cred, sessionPhone, sessionPassword, stdinPrompt(cmd.InOrStdin(), cmd.OutOrStdout()))
		if err != nil {
			return eris.Wrapf(err, "log in %s", name)
		}

		if err := file.Add(cred); err != nil {
			return err
		}

		zap.L().Info("session added",
			zap.String("session", name),
			zap.String("username", self.Username),
			zap.String("session_file", conn.SessionPath(name)),
		)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in rotation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials.NewFile(cfg.Credentials.Path).Load()
		if err != nil {
			return err
		}
		conn := telegram.NewConnector(cfg.Telegram())
		return printSessions(cmd.OutOrStdout(), creds, func(name string) bool {
			_, err := os.Stat(conn.SessionPath(name))
			return err == nil
		})
	},
}

func printSessions(w io.Writer, creds []model.Credential, hasSession func(name string) bool) error {
	if len(creds) == 0 {
		_, err := fmt.Fprintln(w, "no sessions configured")
		return err
	}
	for i, c := range creds {
		state := "not logged in"
		if hasSession(c.Name) {
			state = "ready"
		}
		if _, err := fmt.Fprintf(w, "%d. %s (api_id %d) %s\n", i+1, c.Name, c.APIID, state); err != nil {
			return err
		}
	}
	return nil
}

// stdinPrompt reads the login code Telegram sends to the account.
func stdinPrompt(in io.Reader, out io.Writer) telegram.CodePrompt {
	r := bufio.NewReader(in)
	return func(ctx context.Context) (string, error) {
		if _, err := fmt.Fprint(out, "Enter the login code: "); err != nil {
			return "", err
		}
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return "", eris.Wrap(err, "read login code")
		}
		return strings.TrimSpace(line), nil
	}
}

func init() {
	sessionAddCmd.Flags().StringVar(&sessionName, "name", "", "session name (default: next sessionN)")
	sessionAddCmd.Flags().IntVar(&sessionAPIID, "api-id", 0, "Telegram API id")
	sessionAddCmd.Flags().StringVar(&sessionAPIHash, "api-hash", "", "Telegram API hash")
	sessionAddCmd.Flags().StringVar(&sessionPhone, "phone", "", "account phone number")
	sessionAddCmd.Flags().StringVar(&sessionPassword, "password", "", "two-step verification password, if set")

	sessionCmd.AddCommand(sessionAddCmd, sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}
