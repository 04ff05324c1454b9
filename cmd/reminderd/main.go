package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"plantcare/internal/app"
	"plantcare/internal/reminder"
)

func main() {
	var (
		cfgPath string
		login   string
		once    bool
		due     bool
		plan    bool
		status  bool
	)
	flag.StringVar(&cfgPath, "config", "./reminderd.yaml", "path to config (json or yaml)")
	flag.StringVar(&login, "login", "", "sign this user in before running")
	flag.BoolVar(&once, "once", false, "resync reminders once and exit")
	flag.BoolVar(&due, "due", false, "print today's due tasks and exit")
	flag.BoolVar(&plan, "plan", false, "print the reminders a resync would program and exit")
	flag.BoolVar(&status, "status", false, "print session state, pending reminders and upcoming resyncs and exit")
	flag.Parse()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if once || due || plan || status {
		err := runOnce(a, login, once, due, plan, status)
		_ = a.Stop(context.Background(), app.StopOnce)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if login != "" {
		if _, err := a.Login(ctx, login); err != nil && !reminder.IsKind(err, reminder.KindPermission) {
			fmt.Fprintln(os.Stderr, "login:", err)
		}
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopUnknown
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runOnce(a *app.App, login string, once, due, plan, status bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if login != "" {
		if _, err := a.Login(ctx, login); err != nil && !reminder.IsKind(err, reminder.KindPermission) {
			return err
		}
	}
	if once {
		res, err := a.Foreground(ctx)
		if err != nil {
			return err
		}
		printResult(os.Stdout, res)
	}
	if plan {
		planned, err := a.Plan(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AT\tGROUP\tPLANTS")
		for _, p := range planned {
			fmt.Fprintf(w, "%s\t%s\t%d\n", p.At.Format(time.RFC3339), p.Group.Key, len(p.Group.Members))
		}
		_ = w.Flush()
	}
	if due {
		items, err := a.DueToday(ctx, time.Time{})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PLANT\tTASK\tSTATUS")
		for _, it := range items {
			st := string(it.Status)
			if st == "" {
				st = "pending"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", it.PlantName, it.Task, st)
		}
		_ = w.Flush()
	}
	if status {
		if err := printStatus(ctx, os.Stdout, a); err != nil {
			return err
		}
	}
	return nil
}

func printStatus(ctx context.Context, out io.Writer, a *app.App) error {
	st := a.State()
	user := st.UserID
	if user == "" {
		user = "(signed out)"
	}
	fmt.Fprintf(out, "user:         %s\n", user)
	if !st.LastResyncAt.IsZero() {
		r := st.LastResult
		fmt.Fprintf(out, "last resync:  %s (%s) scheduled=%d cancelled=%d failed=%d\n",
			st.LastResyncAt.Local().Format(time.RFC3339), r.Reason, r.Scheduled, r.Cancelled, r.Failed)
		if r.Error != "" {
			fmt.Fprintf(out, "last error:   %s\n", r.Error)
		}
	}
	if next, err := a.NextResyncs(3); err == nil {
		for i, t := range next {
			label := ""
			if i == 0 {
				label = "next resyncs:"
			}
			fmt.Fprintf(out, "%-13s %s\n", label, t.Format(time.RFC3339))
		}
	}
	if st.UserID != "" {
		plants, err := a.Plants(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "plants:       %d\n", len(plants))
	}

	pending, err := a.Scheduled(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nAT\tTITLE\tBODY")
	for _, n := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\n", n.At.Format(time.RFC3339), n.Title, n.Body)
	}
	return w.Flush()
}

func printResult(w io.Writer, res reminder.Result) {
	fmt.Fprintf(w, "cancelled=%d scheduled=%d failed=%d\n", res.Cancelled, len(res.Scheduled), len(res.Failures))
	for _, g := range res.Scheduled {
		fmt.Fprintf(w, "  %s  %s  (%d plants)\n", g.At.Format(time.RFC3339), g.Key, len(g.PlantIDs))
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  failed: %v\n", f)
	}
}
