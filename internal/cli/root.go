// Package cli is the sessionctl command line: it drives the session core
// against a backend from a terminal.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNotSignedIn = errors.New("not signed in, run `sessionctl login` first")

// NewRootCmd builds the command tree. Every subcommand assembles its own app
// from the environment.
func NewRootCmd(logger *zap.SugaredLogger) *cobra.Command {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var tabID string

	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "Sign in to a backend and use the session from the terminal",
		Long: `sessionctl drives the client session core: it signs in, keeps the token
for the current tab, attaches it to backend requests and ends the session on
expiry, on a 401 or after a period of inactivity.

The session is stored per tab. Pass --tab (or set SESSION_TAB_ID) to reuse
a session across invocations.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&tabID, "tab", "", "tab identifier the session is stored under (default SESSION_TAB_ID or a new one)")

	build := func(cmd *cobra.Command) (*app, error) {
		return newApp(cmd.Context(), logger, tabID)
	}
	root.AddCommand(
		newLoginCmd(build),
		newLogoutCmd(build),
		newWhoamiCmd(build),
		newGetCmd(build),
		newWatchCmd(build),
	)
	return root
}

// ExecuteContext runs the command tree.
func ExecuteContext(ctx context.Context, logger *zap.SugaredLogger) error {
	return NewRootCmd(logger).ExecuteContext(ctx)
}
