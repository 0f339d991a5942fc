package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yk2estrella/leitobot3.0/bot"
	"github.com/yk2estrella/leitobot3.0/folders"
	"github.com/yk2estrella/leitobot3.0/internal/gateway"
	"github.com/yk2estrella/leitobot3.0/internal/statusserver"
	"github.com/yk2estrella/leitobot3.0/session"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the messaging gateway and serve chat commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			gatewayURL := strings.TrimSpace(flagOrViperString(cmd, "gateway-url", "gateway.url"))
			if gatewayURL == "" {
				return fmt.Errorf("missing gateway.url (set via --gateway-url or %s_GATEWAY_URL)", envPrefix)
			}
			gatewayToken := flagOrViperString(cmd, "gateway-token", "gateway.token")

			stateDir := strings.TrimSpace(flagOrViperString(cmd, "state-dir", "state.dir"))
			if stateDir == "" {
				stateDir = "./state"
			}
			wakeWord := strings.TrimSpace(flagOrViperString(cmd, "wake-word", "bot.wake_word"))
			if wakeWord == "" {
				wakeWord = "leitobot"
			}

			texts, err := bot.LoadTexts(flagOrViperString(cmd, "texts-file", "bot.texts_file"))
			if err != nil {
				return err
			}

			store, err := folders.Open(filepath.Join(stateDir, "folders.json"))
			if err != nil {
				return err
			}
			creds, err := session.NewCredentialFile(filepath.Join(stateDir, "session.creds"))
			if err != nil {
				return err
			}

			connector, err := gateway.NewConnector(gateway.Options{
				URL:    gatewayURL,
				Token:  gatewayToken,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			handlers := bot.NewHandlers(logger, bot.NewRouter(wakeWord), store, texts)
			controller, err := session.New(session.Options{
				Logger:           logger,
				Connector:        connector,
				Credentials:      creds,
				Dispatcher:       handlers,
				ReconnectInitial: flagOrViperDuration(cmd, "reconnect-initial", "session.reconnect_initial"),
				ReconnectMax:     flagOrViperDuration(cmd, "reconnect-max", "session.reconnect_max"),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			statusListen := statusserver.NormalizeListen(flagOrViperString(cmd, "status-listen", "status.listen"))
			if statusListen != "" {
				srv, err := statusserver.New(statusserver.Options{
					Logger:       logger,
					State:        func() string { return string(controller.State()) },
					PairingToken: controller.PairingToken,
				})
				if err != nil {
					return err
				}
				if _, err := statusserver.Start(ctx, logger, statusListen, srv); err != nil {
					logger.Warn("status_server_start_error", "addr", statusListen, "error", err.Error())
				}
			}

			logger.Info("leitobot_start",
				"gateway_url", gatewayURL,
				"state_dir", stateDir,
				"wake_word", wakeWord,
				"status_listen", statusListen,
			)

			err = controller.Run(ctx)
			if errors.Is(err, session.ErrLoggedOut) {
				logger.Error("leitobot_logged_out", "hint", "delete the credential file and pair again via /qr")
				return err
			}
			return err
		},
	}

	cmd.Flags().String("gateway-url", "", "Messaging gateway websocket URL (ws:// or wss://).")
	cmd.Flags().String("gateway-token", "", "Bearer token for the gateway.")
	cmd.Flags().String("state-dir", "./state", "Directory for folder and credential state.")
	cmd.Flags().String("wake-word", "leitobot", "Direct-chat wake word that triggers the greeting.")
	cmd.Flags().String("texts-file", "", "YAML file overriding reply texts (optional).")
	cmd.Flags().String("status-listen", "", "Status server listen address, e.g. :8080 (disabled when empty).")
	cmd.Flags().Duration("reconnect-initial", 2*time.Second, "Initial delay between reconnect attempts.")
	cmd.Flags().Duration("reconnect-max", 2*time.Minute, "Maximum delay between reconnect attempts.")

	return cmd
}
