package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/config"
	"github.com/ahmed-com/tickeralarm/export"
	"github.com/ahmed-com/tickeralarm/metrics"
	"github.com/ahmed-com/tickeralarm/recurrence"
	"github.com/ahmed-com/tickeralarm/reconcile"
)

func newAddCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		label     string
		rule      string
		sound     string
		preAlert  time.Duration
		postAlert time.Duration
		disabled  bool
		showOpen  bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a ticker and schedule its alarms",
		Example: `  tickerctl add --label standup --rule "weekdays 09:30 mon,tue,wed,thu,fri"
  tickerctl add --label tea --rule "daily 16:00" --countdown 5m --post-alert 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			parsed, err := recurrence.Parse(rule, a.loc)
			if err != nil {
				return err
			}
			t := tickeralarm.NewTicker(label, parsed)
			t.Enabled = !disabled
			t.Sound = sound
			if preAlert > 0 || postAlert > 0 {
				t.Countdown = &tickeralarm.Countdown{PreAlert: preAlert, PostAlert: postAlert}
			}
			if showOpen {
				t.Presentation.Secondary = tickeralarm.SecondaryOpenApp
			}

			if err := a.sched.ScheduleAlarm(cmd.Context(), t); err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), rootOpts.Format, tickerView(t, a.loc, time.Now()), func(w io.Writer) {
				fmt.Fprintln(w, t.ID)
			})
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "ticker label")
	cmd.Flags().StringVarP(&rule, "rule", "r", "", `recurrence rule, e.g. "daily 07:00"`)
	cmd.Flags().StringVar(&sound, "sound", "", "sound name")
	cmd.Flags().DurationVar(&preAlert, "countdown", 0, "countdown before the alert")
	cmd.Flags().DurationVar(&postAlert, "post-alert", 0, "countdown offered again after the alert")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the ticker disabled")
	cmd.Flags().BoolVar(&showOpen, "open-app", false, "offer an open-app button on the alert")
	_ = cmd.MarkFlagRequired("rule")

	return cmd
}

// tickerJSON is the listing form of a ticker
type tickerJSON struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Composite   bool       `json:"composite"`
	Next        *time.Time `json:"next,omitempty"`
	Occurrences int        `json:"occurrences"`
}

func tickerView(t *tickeralarm.Ticker, loc *time.Location, now time.Time) tickerJSON {
	v := tickerJSON{
		ID:          t.ID.String(),
		Label:       t.Label,
		Enabled:     t.Enabled,
		Schedule:    recurrence.Describe(t.Schedule),
		Composite:   t.IsComposite(),
		Occurrences: len(t.OccurrenceIDs),
	}
	if next, ok := recurrence.Next(t.Schedule, now.In(loc), export.Horizon); ok {
		v.Next = &next
	}
	return v
}

func newListCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tickers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			tickers, err := a.sched.Tickers(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			views := make([]tickerJSON, 0, len(tickers))
			for _, t := range tickers {
				views = append(views, tickerView(t, a.loc, now))
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, views, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tLABEL\tENABLED\tSCHEDULE\tNEXT")
				for _, v := range views {
					next := "-"
					if v.Next != nil {
						next = v.Next.Format("2006-01-02 15:04 MST")
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", v.ID, v.Label, v.Enabled, v.Schedule, next)
				}
				tw.Flush()
			})
		},
	}
}

func newExpandCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		from     string
		window   string
		maxCount int
	)

	cmd := &cobra.Command{
		Use:   "expand <rule>",
		Short: "Print the occurrences of a rule inside a window",
		Example: `  tickerctl expand "monthly 31 09:00" --window 90d
  tickerctl expand "yearly 02-29 08:00" --from 2024-01-01T00:00 --window 1461d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			rule, err := recurrence.Parse(args[0], loc)
			if err != nil {
				return err
			}
			start := time.Now().In(loc)
			if from != "" {
				if start, err = time.ParseInLocation("2006-01-02T15:04", from, loc); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
			}
			span, err := config.ParseDuration(window)
			if err != nil {
				return err
			}

			times := recurrence.Expand(rule, start, span, maxCount)
			return output(cmd.OutOrStdout(), rootOpts.Format, times, func(w io.Writer) {
				for _, t := range times {
					fmt.Fprintln(w, t.Format("Mon 2006-01-02 15:04 MST"))
				}
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "window start as 2006-01-02T15:04 (default now)")
	cmd.Flags().StringVar(&window, "window", "7d", "window length")
	cmd.Flags().IntVar(&maxCount, "max", 0, "maximum occurrences (0 = unlimited)")

	return cmd
}

func newSyncCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			report := a.sched.Synchronize(cmd.Context())
			return output(cmd.OutOrStdout(), rootOpts.Format, report, func(w io.Writer) {
				printReport(w, report)
			})
		},
	}
}

func printReport(w io.Writer, r reconcile.Report) {
	if r.Aborted {
		fmt.Fprintln(w, "aborted: device or store unavailable")
		return
	}
	fmt.Fprintf(w, "cancelled %d, pruned %d, deleted %d tickers and %d collections, regenerated %d\n",
		r.Cancelled, r.Pruned, r.Deleted, r.CollectionsDeleted, r.Regenerated)
}

func newExportCommand(rootOpts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write enabled tickers as an iCalendar feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			tickers, err := a.sched.Tickers(cmd.Context())
			if err != nil {
				return err
			}
			cal := export.Calendar(tickers, time.Now().In(a.loc))

			if out == "" || out == "-" {
				return export.Write(cmd.OutOrStdout(), cal)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := export.Write(f, cal); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the scheduler running and synchronize periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			report := a.sched.Synchronize(ctx)
			rearmed := a.rearm(ctx)
			a.logger.Info("scheduler started",
				zap.Bool("aborted", report.Aborted),
				zap.Int("deleted", report.Deleted),
				zap.Int("regenerated", report.Regenerated),
				zap.Int("rearmed", rearmed),
				zap.String("refresh_schedule", a.cfg.Reconcile.RefreshSchedule),
			)

			if err := a.sched.StartRefresh(); err != nil {
				return err
			}
			<-ctx.Done()

			a.sched.StopRefresh()
			a.logger.Info("scheduler stopped",
				zap.Int("tickers", a.metrics.GetTickers()),
				zap.Int("live_alarms", a.metrics.GetLiveAlarms()),
				zap.Int64("completed_passes", a.metrics.GetReconcilePasses(metrics.OutcomeCompleted)),
			)
			return nil
		},
	}
}

// output writes v as indented JSON or through text
func output(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
