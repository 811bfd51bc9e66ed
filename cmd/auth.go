package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/huh/spinner"
	"github.com/urfave/cli/v3"

	"github.com/boergens/spotify-shokz-sync/internal/server"
	"github.com/boergens/spotify-shokz-sync/internal/services"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

// AuthLogin performs the OAuth2 authorization code flow for Spotify.
//
// Starts a local HTTP server on the configured redirect address, opens the
// browser for user authorization, and exchanges the auth code for tokens.
// The token lands in the token file, where the daemon picks it up.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials)
	}

	tokenPath, err := config.SpotifyTokenPath()
	if err != nil {
		return err
	}

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, tokenPath, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	code, err := r.doOAuth(ctx, config, spotify)
	if err != nil {
		return err
	}

	if err := spotify.Exchange(ctx, code); err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	user, err := spotify.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch profile after login: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Logged in as %s\n", user.DisplayName)
	r.writePlain("✓ Token saved to %s\n\n", tokenPath)
	r.writePlain("You can now use: shokz-sync run\n")

	return nil
}

// AuthStatus checks whether a usable token is on disk.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	tokenPath, err := config.SpotifyTokenPath()
	if err != nil {
		return err
	}

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, tokenPath, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	if err := spotify.Authenticate(ctx); err != nil {
		r.writePlain("✗ Not authenticated: %v\n", err)
		r.writePlain("Run 'shokz-sync auth login' to authorize.\n")
		return nil
	}

	user, err := spotify.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("token found but profile request failed: %w", err)
	}

	r.writePlain("✓ Authenticated as %s (%s)\n", user.DisplayName, user.ID)
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
// listening on the configured redirect address.
func (r *Runner) doOAuth(ctx context.Context, config *shared.Config, spotify *services.SpotifyService) (string, error) {
	state := shared.GenerateID()

	redirect, err := url.Parse(config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: invalid redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	handler := server.NewCallbackHandler(state, redirect.Path)
	router := server.NewBasicRouter()
	router.Use(server.Logged(r.logger))
	router.Handler(handler)

	httpServer := &http.Server{
		Addr:    redirect.Host,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting callback listener", "addr", redirect.Host)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	authURL := spotify.AuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	var code string
	wait := func(ctx context.Context) error {
		timeout := time.NewTimer(2 * time.Minute)
		defer timeout.Stop()

		select {
		case result := <-handler.Result():
			if result.Error() != nil {
				return result.Error()
			}
			code = result.Code
			return nil
		case err := <-serverErrors:
			return fmt.Errorf("callback listener failed: %w", err)
		case <-timeout.C:
			return fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err = spinner.New().Title("Waiting for Spotify authorization...").Context(ctx).ActionWithErr(wait).Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		r.logger.Warn("error shutting down callback listener", "error", shutdownErr)
	}

	if err != nil {
		return "", fmt.Errorf("authorization failed: %w", err)
	}

	return code, nil
}
