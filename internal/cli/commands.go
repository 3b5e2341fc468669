package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	"github.com/geocoder89/certhub/internal/offline"
	"github.com/spf13/cobra"
)

func newAddCommand(opts *RootOptions) *cobra.Command {
	var (
		typ, payload, description string
		eventID, registrationID   string
		submit                    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue an action for later sync",
		Long: `Queue an action for later sync.

Types: REGISTER_USER_TO_EVENT, MARK_ATTENDANCE, CREATE_USER, CREATE_EVENT,
ISSUE_CERTIFICATE. With --submit the action is sent right away and only
queued when the backend cannot be reached.

Examples:
  certhub-offline add --type CREATE_EVENT --payload '{"title":"Go Meetup","startAt":"2026-11-01T18:00:00Z","capacity":40}'
  certhub-offline add --type MARK_ATTENDANCE --event <eventId> --registration <registrationId>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := pendingaction.Payload{}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &body); err != nil {
					return wrapExit(ExitCommandError, "payload must be a JSON object", err)
				}
			}

			a, err := pendingaction.New(pendingaction.NewRequest{
				Type:           pendingaction.Type(strings.ToUpper(typ)),
				Payload:        body,
				Description:    description,
				EventID:        eventID,
				RegistrationID: registrationID,
			})
			if err != nil {
				return wrapExit(ExitCommandError, "invalid action", err)
			}

			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			p := opts.printer(cmd)

			if submit {
				r := offline.NewRunner(s, opts.dispatcher(), offline.WithLogger(opts.log))
				queued, err := r.Submit(cmd.Context(), a)
				if err != nil {
					return wrapExit(ExitFailure, "submit failed", err)
				}
				if queued {
					return p.action(a, "offline, queued")
				}
				return p.action(a, "sent")
			}

			if err := s.Add(cmd.Context(), a); err != nil {
				return wrapExit(ExitCommandError, "queue action", err)
			}
			return p.action(a, "queued")
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "action type (required)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "JSON object sent as the request body")
	cmd.Flags().StringVarP(&description, "description", "d", "", "human readable label")
	cmd.Flags().StringVar(&eventID, "event", "", "event id")
	cmd.Flags().StringVar(&registrationID, "registration", "", "registration id")
	cmd.Flags().BoolVar(&submit, "submit", false, "send now, queue only when offline")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every queued action in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			all, err := s.All(cmd.Context())
			if err != nil {
				return wrapExit(ExitCommandError, "list actions", err)
			}
			return opts.printer(cmd).actions(all)
		},
	}
}

func newPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show actions waiting to be synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			pending, err := s.Pending(cmd.Context())
			if err != nil {
				return wrapExit(ExitCommandError, "list pending actions", err)
			}
			return opts.printer(cmd).actions(pending)
		},
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	var retryFailed, stopOnFailure bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay pending actions against the backend",
		Long: `Replay pending actions oldest first. Synced actions are removed;
rejected ones are marked failed with the server's message and stay in the
queue until retried or removed.

Exit codes:
  0 - every attempted action synced
  1 - at least one action failed
  2 - command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if retryFailed {
				n, err := s.ResetAllFailed(cmd.Context())
				if err != nil {
					return wrapExit(ExitCommandError, "reset failed actions", err)
				}
				opts.log.Debug("failed actions requeued", "count", n)
			}

			r := offline.NewRunner(s, opts.dispatcher(),
				offline.WithLogger(opts.log),
				offline.WithStopOnFailure(stopOnFailure),
			)

			report, err := r.Sync(cmd.Context())
			if perr := opts.printer(cmd).report(report); perr != nil {
				return perr
			}
			if err != nil {
				return wrapExit(ExitCommandError, "sync interrupted", err)
			}
			if report.Failed > 0 {
				return wrapExit(ExitFailure, fmt.Sprintf("%d action(s) failed", report.Failed), nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "reset failed actions to pending first")
	cmd.Flags().BoolVar(&stopOnFailure, "stop-on-failure", false, "stop at the first failed action")

	return cmd
}

func newRetryCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [id]",
		Short: "Move a failed action back to pending",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass an id or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("expected exactly one action id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			p := opts.printer(cmd)

			if all {
				n, err := s.ResetAllFailed(cmd.Context())
				if err != nil {
					return wrapExit(ExitCommandError, "reset failed actions", err)
				}
				return p.message("requeued %d failed action(s)", n)
			}

			if err := s.ResetFailed(cmd.Context(), args[0]); err != nil {
				return wrapExit(ExitCommandError, "retry "+args[0], err)
			}
			return p.message("requeued %s", args[0])
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "requeue every failed action")
	return cmd
}

func newRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Drop an action from the queue",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Remove(cmd.Context(), args[0]); err != nil {
				return wrapExit(ExitCommandError, "remove "+args[0], err)
			}
			return opts.printer(cmd).message("removed %s", args[0])
		},
	}
}

func newClearCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return wrapExit(ExitCommandError, "refusing to clear the queue without --yes", nil)
			}

			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Clear(cmd.Context()); err != nil {
				return wrapExit(ExitCommandError, "clear queue", err)
			}
			return opts.printer(cmd).message("queue cleared")
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var (
		interval    time.Duration
		retryFailed bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync automatically whenever the backend becomes reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval == 0 && opts.file.WatchInterval != "" {
				d, err := time.ParseDuration(opts.file.WatchInterval)
				if err != nil {
					return wrapExit(ExitCommandError, "invalid watch_interval in config", err)
				}
				interval = d
			}
			if interval == 0 {
				interval = 5 * time.Second
			}

			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			p := opts.printer(cmd)
			r := offline.NewRunner(s, opts.dispatcher(),
				offline.WithLogger(opts.log),
				offline.WithRetryFailed(retryFailed),
				offline.WithSyncHook(func(report offline.SyncReport, err error) {
					if report.Attempted > 0 {
						_ = p.report(report)
					}
				}),
			)

			probe := offline.NewHealthProbe(opts.EventsURL, opts.Timeout)
			return r.Watch(cmd.Context(), probe, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "connectivity poll interval (default 5s)")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "requeue failed actions before each automatic sync")
	return cmd
}
