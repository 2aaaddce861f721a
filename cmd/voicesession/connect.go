package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carevox/voicesession/pkg/connection"
	"github.com/carevox/voicesession/pkg/report"
	"github.com/carevox/voicesession/pkg/room"
	"github.com/carevox/voicesession/pkg/session"
	"github.com/carevox/voicesession/pkg/timeline"
	"github.com/carevox/voicesession/pkg/watchdog"
)

type connectConfig struct {
	IssuerURL     string
	Server        string
	Room          string
	Token         string
	Name          string
	AgentMarker   string
	Marker        string
	AgentDeadline time.Duration
}

func bindConnectFlags(cmd *cobra.Command) {
	cmd.Flags().String("issuer-url", "", "connection details endpoint (e.g. https://host/api/connection-details)")
	cmd.Flags().String("server", "", "room server URL hand-off (overrides the issuer)")
	cmd.Flags().String("room", "", "room name hand-off")
	cmd.Flags().String("token", "", "participant token hand-off")
	cmd.Flags().String("name", "", "participant name hand-off")
	cmd.Flags().String("agent-marker", timeline.DefaultAgentMarker, "identity substring that classifies a speaker as the agent")
	cmd.Flags().String("session-end-marker", report.DefaultMarker, "text marker that ends the session and requests a report")
	cmd.Flags().Duration("agent-deadline", watchdog.DefaultDeadline, "how long to wait for the agent to become available")
}

func connectConfigFromViper() connectConfig {
	return connectConfig{
		IssuerURL:     viper.GetString("issuer-url"),
		Server:        viper.GetString("server"),
		Room:          viper.GetString("room"),
		Token:         viper.GetString("token"),
		Name:          viper.GetString("name"),
		AgentMarker:   viper.GetString("agent-marker"),
		Marker:        viper.GetString("session-end-marker"),
		AgentDeadline: viper.GetDuration("agent-deadline"),
	}
}

func newConnectionManager(cfg connectConfig) *connection.Manager {
	var issuer connection.Issuer
	if cfg.IssuerURL != "" {
		issuer = connection.NewHTTPIssuer(cfg.IssuerURL)
	}
	return connection.NewManager(issuer, connection.WithBootstrap(map[string]string{
		"server": cfg.Server,
		"room":   cfg.Room,
		"token":  cfg.Token,
		"name":   cfg.Name,
	}))
}

func newConnectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a room and run the session until it ends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// bind at run time so env vars fill in flags the user left unset
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return runConnect(cmd.Context(), connectConfigFromViper())
		},
	}
	bindConnectFlags(cmd)
	return cmd
}

func runConnect(ctx context.Context, cfg connectConfig) error {
	manager := newConnectionManager(cfg)
	details, err := manager.CurrentOrRefreshed(ctx)
	if err != nil {
		return errors.Wrap(err, "could not obtain connection details")
	}

	// persistent so frames arriving between dial and subscribe are replayed
	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	roomClient, err := room.Dial(ctx, details, pubsub)
	if err != nil {
		return err
	}
	defer func() { _ = roomClient.Disconnect() }()

	coord := session.New(roomClient.Name(), pubsub, roomClient,
		session.WithClassifier(timeline.NewClassifier(cfg.AgentMarker)),
		session.WithTriggerOptions(report.WithMarker(cfg.Marker)),
		session.WithWatchdogOptions(watchdog.WithDeadline(cfg.AgentDeadline)),
		session.WithOnTimeline(printLatest),
		session.WithOnNotice(func(title, desc string) {
			fmt.Printf("\n[%s] %s\n", title, desc)
		}),
		session.WithOnTeardown(func() { _ = roomClient.Disconnect() }),
	)
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()
	coord.SessionStarted()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigCh:
		log.Info().Msg("interrupted, leaving room")
	case <-roomClient.Done():
		log.Info().Msg("room connection closed")
	}
	return nil
}

// printLatest renders just the newest entry; the full timeline view belongs to
// the UI collaborator, not this CLI.
func printLatest(msgs []timeline.Message) {
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	speaker := "patient"
	if last.Role == timeline.RoleAgent {
		speaker = "agent"
	}
	fmt.Printf("%s %s: %s\n", last.Timestamp.Format("15:04:05"), speaker, last.Text)
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch and print fresh connection details as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg := connectConfigFromViper()
			if cfg.IssuerURL == "" {
				return errors.New("token requires --issuer-url")
			}
			details, err := connection.NewHTTPIssuer(cfg.IssuerURL).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(details, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	bindConnectFlags(cmd)
	return cmd
}
