// Command runsim drives the phone-side run core from a terminal: it replays
// recorded routes against the API, fires SOS and tails realtime events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"backend-runbarbie/internal/client"
	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/realtime"
	"backend-runbarbie/internal/settings"
	"backend-runbarbie/internal/shared/geo"
	"backend-runbarbie/internal/sos"
	"backend-runbarbie/internal/stream"
	"backend-runbarbie/internal/tracker"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	apiURL       string
	token        string
	settingsPath string
	logMode      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "runsim",
		Short:         "Simulate the RunBarbie phone client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.apiURL, "api", "http://localhost:8080", "API base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("RUNBARBIE_TOKEN"), "access token")
	root.PersistentFlags().StringVar(&g.settingsPath, "settings", "runbarbie.yaml", "local settings file")
	root.PersistentFlags().StringVar(&g.logMode, "log-mode", "development", "development|production")

	root.AddCommand(newReplayCmd(g))
	root.AddCommand(newSOSCmd(g))
	root.AddCommand(newWatchCmd(g))
	root.AddCommand(newSettingsCmd(g))
	return root
}

func (g *globalFlags) logger() *logger.Logger {
	log, err := logger.New(g.logMode)
	if err != nil {
		return logger.Nop()
	}
	return log
}

func (g *globalFlags) client() *client.Client {
	c := client.New(g.apiURL)
	c.SetToken(g.token)
	return c
}

func newReplayCmd(g *globalFlags) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "replay <track.yaml>",
		Short: "Record a run by replaying a route file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := loadTrack(args[0])
			if err != nil {
				return err
			}
			prefs, err := settings.Load(g.settingsPath)
			if err != nil {
				return err
			}
			log := g.logger()
			defer log.Sync()

			provider := newReplayProvider(points, interval)
			tr := tracker.New(g.client(), provider, log, tracker.WithTickInterval(interval))

			ctx := cmd.Context()
			started, err := tr.Start(ctx, tracker.OptionsFrom(prefs))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s started\n", started.RunID)

			select {
			case <-provider.finished:
			case <-ctx.Done():
			}
			snap, err := tr.End(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s ended: %s in %s (%d points)\n",
				started.RunID, geo.FormatDistance(snap.DistanceKm, prefs.DistanceUnit),
				geo.FormatDuration(snap.DurationSeconds), snap.Points)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between replayed samples")
	return cmd
}

// printIntents stands in for the native dialer and SMS composer.
type printIntents struct {
	cmd *cobra.Command
}

func (p printIntents) Dial(number string) error {
	_, err := fmt.Fprintf(p.cmd.OutOrStdout(), "dial %s\n", number)
	return err
}

func (p printIntents) ComposeSMS(number, body string) error {
	_, err := fmt.Fprintf(p.cmd.OutOrStdout(), "sms %s: %s\n", number, body)
	return err
}

func newSOSCmd(g *globalFlags) *cobra.Command {
	var test string
	cmd := &cobra.Command{
		Use:   "sos [runId]",
		Short: "Trigger SOS for a run, or test the alert with --test call|text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := g.logger()
			defer log.Sync()
			d := sos.NewDispatcher(g.client(), printIntents{cmd: cmd}, sos.FileSettings(g.settingsPath), log)

			if test != "" {
				return d.Test(sos.TestKind(test))
			}
			if len(args) != 1 {
				return fmt.Errorf("runId required unless --test is set")
			}
			resp, err := d.Trigger(cmd.Context(), args[0])
			if resp.MapsURL != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "location: %s\n", resp.MapsURL)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&test, "test", "", "call|text: exercise the alert locally without the server")
	return cmd
}

func wsURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(strings.TrimRight(apiURL, "/"), "https://") + "/stream/ws"
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(strings.TrimRight(apiURL, "/"), "http://") + "/stream/ws"
	}
	return strings.TrimRight(apiURL, "/") + "/stream/ws"
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var userID string
	var conversations, runners []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print realtime events for the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := g.logger()
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session := realtime.NewSessionController(realtime.Factory(wsURL(g.apiURL), log), log)
			defer session.Logout()

			bridge := session.Prepare(userID)
			events := []stream.EventName{
				stream.EventNewPost, stream.EventNewStory, stream.EventNewReel,
				stream.EventNewMessage, stream.EventNewNotification, stream.EventConversationUpdated,
				stream.EventLiveLocation, stream.EventSOSTriggered,
			}
			for _, ev := range events {
				bridge.Subscribe(ev, func(m realtime.Message) {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", m.Room, m.Event, m.Data)
				})
			}
			if _, err := session.Login(ctx, userID, g.token); err != nil {
				return err
			}
			for _, id := range conversations {
				bridge.JoinConversation(id)
			}
			for _, id := range runners {
				bridge.WatchRunner(id)
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the token belongs to")
	cmd.Flags().StringSliceVar(&conversations, "conversation", nil, "conversation ids to join")
	cmd.Flags().StringSliceVar(&runners, "runner", nil, "user ids whose shared live location to follow")
	return cmd
}

func newSettingsCmd(g *globalFlags) *cobra.Command {
	var share, sosEnabled bool
	var contact, number, unit string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change local settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := settings.Load(g.settingsPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			changed := false
			if flags.Changed("share") {
				s.ShareLiveLocation, changed = share, true
			}
			if flags.Changed("sos") {
				s.SOSEnabled, changed = sosEnabled, true
			}
			if flags.Changed("contact") {
				s.EmergencyContact, changed = contact, true
			}
			if flags.Changed("number") {
				s.EmergencyNumber, changed = number, true
			}
			if flags.Changed("unit") {
				if unit != string(geo.Kilometers) && unit != string(geo.Miles) {
					return fmt.Errorf("unit must be km or mi")
				}
				s.DistanceUnit, changed = geo.Unit(unit), true
			}
			if changed {
				if err := settings.Save(g.settingsPath, s); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "share_live_location: %v\nemergency_contact: %s\nemergency_number: %s\nsos_enabled: %v\ndistance_unit: %s\n",
				s.ShareLiveLocation, s.EmergencyContact, s.Dialable(), s.SOSEnabled, s.DistanceUnit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&share, "share", false, "share live location during runs")
	cmd.Flags().BoolVar(&sosEnabled, "sos", true, "enable the SOS button")
	cmd.Flags().StringVar(&contact, "contact", "", "emergency contact phone number")
	cmd.Flags().StringVar(&number, "number", "", "emergency services number")
	cmd.Flags().StringVar(&unit, "unit", "km", "distance unit: km|mi")
	return cmd
}
