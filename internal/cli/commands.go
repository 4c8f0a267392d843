package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/idle"
)

type builder func(cmd *cobra.Command) (*app, error)

func newLoginCmd(build builder) *cobra.Command {
	var correo, contrasena string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password and store the session for this tab.

Examples:
  sessionctl login --correo admin@example.com --contrasena admin123
  sessionctl --tab 2Nf0... login --correo ventas@example.com --contrasena ventas123`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.gate.Login(cmd.Context(), correo, contrasena); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s\n", a.describe())
			fmt.Fprintf(out, "Tab: %s\n", a.cfg.TabID)
			return nil
		},
	}
	cmd.Flags().StringVar(&correo, "correo", "", "account email")
	cmd.Flags().StringVar(&contrasena, "contrasena", "", "account password")
	_ = cmd.MarkFlagRequired("correo")
	_ = cmd.MarkFlagRequired("contrasena")
	return cmd
}

func newLogoutCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session of this tab",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !a.restore(cmd.Context()) {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			// revoke server side first; the local logout happens regardless
			if err := a.client.Post(cmd.Context(), "/auth/logout", nil, nil); err != nil {
				a.logger.Debugw("server logout failed", "err", err)
			}
			a.gate.Logout()
			fmt.Fprintln(out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			a.restore(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), a.describe())
			return nil
		},
	}
}

func newGetCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET a backend path with the session credential",
		Long: `GET a path relative to the backend base URL and print the JSON response.

Examples:
  sessionctl get /products`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			a.restore(cmd.Context())
			if d := a.gate.GuardEntry(); !d.Allow {
				return errNotSignedIn
			}
			var raw json.RawMessage
			if err := a.client.Get(cmd.Context(), args[0], &raw); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				buf.Reset()
				buf.Write(raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return nil
		},
	}
}

func newWatchCmd(build builder) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session open while input arrives on stdin",
		Long: `Run the idle monitor until the session ends. Every line read from stdin
counts as user activity. The command returns when the session ends through
inactivity, expiry or a rejected request, or on interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if !a.restore(ctx) {
				return errNotSignedIn
			}
			out := cmd.OutOrStdout()

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Warnw("metrics server failed", "err", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			a.monitor.Start()
			fmt.Fprintf(out, "Watching session of %s\n", a.describe())

			go func() {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					a.bus.Emit(idle.KeyDown)
				}
			}()

			select {
			case <-a.loggedOut:
				fmt.Fprintln(out, "Session ended")
			case <-ctx.Done():
				a.monitor.Stop()
				fmt.Fprintln(out, "Stopped")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	return cmd
}
