package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nerrad567/housing-backoffice/internal/session"
)

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var (
		email    string
		password string
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with an email and password. Without --password the password is
read from the terminal, or from the first line of stdin when it is not a
terminal.

With --watch the command stays running and exits when the session ends.

Examples:
  backofficectl login --email admin@example.org
  echo "$PASSWORD" | backofficectl login --email clerk@example.org --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				var err error
				if password, err = readPassword(cmd); err != nil {
					return err
				}
			}

			ended := make(chan session.Reason, 1)
			opts.onExpired = func(r session.Reason) {
				select {
				case ended <- r:
				default:
				}
			}

			m, err := opts.manager(cmd)
			if err != nil {
				return err
			}
			sess, err := m.Login(cmd.Context(), email, password)
			if err != nil {
				var apiErr *session.APIError
				if errors.As(err, &apiErr) {
					return fmt.Errorf("login failed: %s", apiErr.Message)
				}
				return fmt.Errorf("login failed: %w", err)
			}

			out := cmd.OutOrStdout()
			printf(out, "Logged in as %s\n", email)
			printf(out, "Session expires %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))

			if !watch {
				return nil
			}
			select {
			case r := <-ended:
				printf(out, "Session ended (%s)\n", r)
			case <-cmd.Context().Done():
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	cmd.Flags().BoolVar(&watch, "watch", false, "stay running until the session ends")
	return cmd
}

// readPassword prompts on a terminal or reads one line from a pipe.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		printf(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // fd fits in int
		printf(cmd.ErrOrStderr(), "\n")
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no password given")
	}
	return line, nil
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in principal",
		Long: `Show the principal the stored token was issued for. The claims are read
locally without verifying the signature; use 'get /api/v1/auth/me' for the
server's view.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, sess, err := opts.restore(cmd)
			if err != nil {
				return err
			}
			claims, err := m.CurrentPrincipal()
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}

			out := cmd.OutOrStdout()
			printf(out, "ID:      %s\n", claims.Subject)
			printf(out, "Kind:    %s\n", claims.Kind)
			printf(out, "Role:    %s\n", claims.Role)
			printf(out, "Expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := opts.manager(cmd)
			if err != nil {
				return err
			}
			if err := m.Logout(); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Logged out\n")
			return nil
		},
	}
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET an API path with the session token",
		Long: `Send an authenticated GET to the API and print the response body.
A 401 answer clears the stored session.

Examples:
  backofficectl get /api/v1/auth/me
  backofficectl get "/api/v1/tenants?limit=10"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := opts.restore(cmd)
			if err != nil {
				return err
			}

			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimSuffix(opts.url, "/")+path, nil)
			if err != nil {
				return err
			}

			resp, err := m.Client().Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			printf(cmd.OutOrStdout(), "\n")

			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				return fmt.Errorf("session rejected by server, log in again")
			case resp.StatusCode >= 400:
				return fmt.Errorf("server returned %s", resp.Status)
			}
			return nil
		},
	}
}
