package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/agent-dashboard/internal/config"
	"github.com/thebtf/agent-dashboard/internal/org"
	"github.com/thebtf/agent-dashboard/internal/worker"
	"github.com/thebtf/agent-dashboard/pkg/client"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Print the current session list as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if host, port := config.GetHost(), config.GetPort(); client.IsServerRunning(host, port) {
				sessions, err := client.New(host, port).Sessions(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sessions)
			}

			svc, err := localService()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.Sessions(ctx))
		},
	}
}

func newOrgCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "org",
		Short: "Print the org tree merged with live sessions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if host, port := config.GetHost(), config.GetPort(); client.IsServerRunning(host, port) {
				tree, err := client.New(host, port).Org(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tree)
			}

			svc, err := localService()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.Org(ctx))
		},
	}
}

func newDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <session-key>",
		Short: "Hide a session from the dashboard",
		Long:  "Adds a session key to the dismissal set. When a dashboard is running the request goes through it so subscribers see the change at once; otherwise the set is updated on disk.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			var (
				added bool
				err   error
			)
			if host, port := config.GetHost(), config.GetPort(); client.IsServerRunning(host, port) {
				var res client.DismissResult
				res, err = client.New(host, port).Dismiss(cmd.Context(), key)
				added = res.Added
			} else {
				added, err = dismissOnDisk(key)
			}
			if err != nil {
				return err
			}

			if added {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "dismissed %s\n", key)
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s was already dismissed\n", key)
			}
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
			return err
		},
	}
}

// localService builds a service for one-off reads when no server answers.
func localService() (*worker.Service, error) {
	log.Debug().Msg("No dashboard running, reading stores directly")
	return worker.NewService(Version, loadConfig())
}

func dismissOnDisk(key string) (bool, error) {
	store := org.NewDismissalStore(loadConfig().DismissedPath)
	if err := store.Load(); err != nil {
		return false, err
	}
	return store.Dismiss(key)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
