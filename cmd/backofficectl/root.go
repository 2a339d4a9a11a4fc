package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/housing-backoffice/internal/session"
)

const defaultURL = "http://localhost:8080"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	url         string
	sessionFile string
	verbose     bool

	// onExpired is extended by login --watch.
	onExpired func(session.Reason)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "backofficectl",
		Short: "Operator client for the housing back office API",
		Long: `backofficectl signs in to the housing back office API and calls it
with the stored session token.

The session is kept in a file readable only by the current user and is
cleared as soon as the token expires or the server rejects it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	url := os.Getenv("BACKOFFICE_URL")
	if url == "" {
		url = defaultURL
	}
	root.PersistentFlags().StringVar(&opts.url, "url", url, "API base URL (env BACKOFFICE_URL)")
	root.PersistentFlags().StringVar(&opts.sessionFile, "session-file", "", "session file (default: user config dir)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log session events to stderr")

	root.AddCommand(
		newLoginCmd(opts),
		newWhoamiCmd(opts),
		newLogoutCmd(opts),
		newGetCmd(opts),
	)
	return root
}

// manager builds a session manager over the configured session file.
func (o *globalOptions) manager(cmd *cobra.Command) (*session.Manager, error) {
	path := o.sessionFile
	if path == "" {
		var err error
		if path, err = session.DefaultFilePath(); err != nil {
			return nil, err
		}
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	m, err := session.New(o.url, session.NewFileStore(path),
		session.WithLogger(logger),
		session.WithOnExpired(func(r session.Reason) {
			if o.onExpired != nil {
				o.onExpired(r)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return m, nil
}

// restore loads a live session or explains how to get one.
func (o *globalOptions) restore(cmd *cobra.Command) (*session.Manager, session.Session, error) {
	m, err := o.manager(cmd)
	if err != nil {
		return nil, session.Session{}, err
	}
	sess, ok, err := m.Restore()
	if err != nil {
		return nil, session.Session{}, err
	}
	if !ok {
		return nil, session.Session{}, fmt.Errorf("not logged in, run 'backofficectl login'")
	}
	return m, sess, nil
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...) //nolint:errcheck // terminal output
}
