package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/client"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/tui"
)

// NewTakeCmd runs the terminal attempt client against a server.
func NewTakeCmd(configPath *string) *cobra.Command {
	var (
		server  string
		token   string
		subject string
	)
	cmd := &cobra.Command{
		Use:   "take QUIZ_CODE",
		Short: "Take a quiz in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				if subject == "" {
					return fmt.Errorf("pass --token, or --sub to sign a dev token with the local config")
				}
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				if token, err = issueToken(cfg, subject, "participant"); err != nil {
					return err
				}
			}
			return tui.Run(cmd.Context(), client.New(server, token), args[0])
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "attempt server base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	cmd.Flags().StringVar(&subject, "sub", "", "participant id for a locally signed dev token")
	return cmd
}
