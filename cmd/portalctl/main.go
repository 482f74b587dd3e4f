package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rdportal/client/internal/apiclient"
	"rdportal/client/internal/cache"
	"rdportal/client/internal/config"
	"rdportal/client/internal/guard"
	"rdportal/client/internal/log"
	"rdportal/client/internal/session"
	"rdportal/client/internal/tokenstore"
)

// app bundles the per-invocation wiring: one token store, one API client,
// one session manager. A CLI run is the Go analogue of a page load, so the
// manager lives exactly as long as the command.
type app struct {
	cfg     *config.AppConfig
	log     zerolog.Logger
	tokens  tokenstore.Store
	client  *apiclient.Client
	manager *session.Manager
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := log.New("portalctl", cfg.Environment)

	var redisClient *redis.Client
	if cfg.TokenStore.Backend == "redis" {
		redisClient, err = cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			return nil, err
		}
	}

	tokens, err := tokenstore.New(cfg.TokenStore, redisClient)
	if err != nil {
		return nil, err
	}

	client := apiclient.New(cfg.API, tokens, logger)
	manager := session.NewManager(client, tokens, logger)
	client.SetUnauthorizedHandler(manager.Invalidate)

	return &app{
		cfg:     cfg,
		log:     logger,
		tokens:  tokens,
		client:  client,
		manager: manager,
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Session tooling for the R&D portal backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newRefreshCmd(),
		newCheckCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describeError(err))
		os.Exit(1)
	}
}

func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.manager.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			return printJSON(a.manager.CurrentUser())
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "portal username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "portal password")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the remote session (best effort) and clear local tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.manager.Logout(cmd.Context())
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user, hydrating from the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if token, _ := a.tokens.Access(cmd.Context()); token != "" {
				if exp, ok := apiclient.TokenExpiresAt(token); ok && time.Now().After(exp) {
					a.log.Debug().Time("expired_at", exp).Msg("stored access token looks expired, trying anyway")
				}
			}
			if err := a.manager.Hydrate(cmd.Context()); err != nil {
				return err
			}
			if !a.manager.IsAuthenticated() {
				return errors.New("not logged in")
			}
			return printJSON(a.manager.CurrentUser())
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the access token using the stored refresh token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.manager.RefreshToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("access token refreshed")
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	var role, permission string

	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Dry-run the route guard for a protected path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.manager.Hydrate(cmd.Context()); err != nil {
				a.log.Warn().Err(err).Msg("hydration incomplete, deciding on current state")
			}

			g := guard.New(a.cfg.Gateway.LoginPath)
			decision := g.Decide(a.manager, args[0], guard.Requirement{
				Role:       role,
				Permission: permission,
			})

			switch decision.Verdict {
			case guard.VerdictAllow:
				fmt.Println("allow")
			case guard.VerdictRedirect:
				fmt.Println("redirect ->", decision.Location)
			case guard.VerdictForbid:
				fmt.Println("forbidden")
			default:
				fmt.Println("loading")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "required role code")
	cmd.Flags().StringVar(&permission, "permission", "", "required permission")
	return cmd
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// describeError keeps the two failure families the user cares about
// distinguishable: wrong credentials vs unreachable service.
func describeError(err error) string {
	var validation *apiclient.ValidationError
	var network *apiclient.NetworkError
	var server *apiclient.ServerError
	switch {
	case errors.As(err, &validation):
		return validation.Reason
	case errors.Is(err, apiclient.ErrInvalidCredentials):
		return "invalid username or password"
	case errors.Is(err, apiclient.ErrUnauthorized):
		return "session expired, log in again"
	case errors.As(err, &network):
		return "could not reach the portal service"
	case errors.As(err, &server):
		return fmt.Sprintf("portal service error (status %d)", server.Status)
	default:
		return err.Error()
	}
}
