package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"evsched/internal/api"
	"evsched/internal/capture"
	"evsched/internal/clock"
	"evsched/internal/config"
	"evsched/internal/controller"
	"evsched/internal/ics"
	appLog "evsched/internal/log"
	"evsched/internal/model"
	"evsched/internal/notify"
	"evsched/internal/scheduler"
	"evsched/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	snapshot   string
	importSrc  string
	importDays int
}

func main() {
	appLog.Info("evsched starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	appLog.Info("effective config",
		"listen", conf.Listen,
		"api_endpoint", appLog.RedactURL(conf.API.Endpoint),
		"api_timeout", conf.API.Timeout.String(),
		"timezone", conf.Timezone,
		"resync", conf.Resync,
		"exclude_edited_event", conf.Conflicts.ExcludeEditedEvent,
		"redis", conf.Redis.Addr != "",
		"once", flags.once,
		"snapshot", flags.snapshot,
		"import", flags.importSrc,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("evsched failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("evsched exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc := conf.Location()
	clk := clock.NewSystem(loc)

	client := api.NewClient(conf.API.Endpoint, conf.API.Timeout)
	ctrl := controller.New(client,
		controller.WithClock(clk),
		controller.WithExcludeEditedEvent(conf.Conflicts.ExcludeEditedEvent),
	)
	ctrl.Subscribe(notify.Log())

	if conf.Redis.Addr != "" {
		rdb, err := notify.Dial(ctx, conf.Redis)
		if err != nil {
			// Fan-out is optional; the UI keeps working without it.
			appLog.Error("redis unavailable; notifications stay local", err)
		} else {
			defer rdb.Close()
			obs := notify.NewRedisObserver(rdb, conf.Redis.Channel)
			ctrl.Subscribe(obs)
			go obs.Run(ctx)
		}
	}

	if err := ctrl.Load(ctx); err != nil {
		if flags.once || flags.importSrc != "" {
			return err
		}
		appLog.Error("initial event load failed; serving cached (empty) list", err)
	}

	switch {
	case flags.importSrc != "":
		return runImport(ctx, ctrl, conf, flags, clk)
	case flags.once:
		return printEvents(os.Stdout, ctrl.Snapshot().Events)
	}

	srv, err := web.NewServer(conf, ctrl, web.WithClock(clk))
	if err != nil {
		return fmt.Errorf("init web server: %w", err)
	}
	defer srv.Close()

	if flags.snapshot != "" {
		return runSnapshot(ctx, conf, srv, flags.snapshot)
	}

	if conf.Resync != "" {
		sched, err := scheduler.New(conf.Resync, loc, ctrl, conf.API.Timeout)
		if err != nil {
			return err
		}
		go sched.Run(ctx)
	}

	return web.StartServer(ctx, conf, srv)
}

// runImport creates one event per occurrence found in the iCalendar source.
// Each goes through the normal validation and conflict check; failures are
// counted and skipped.
func runImport(ctx context.Context, ctrl *controller.Controller, conf *config.Config, flags flagConfig, clk clock.Clock) error {
	body, err := ics.ReadSource(ctx, flags.importSrc, conf.API.Timeout)
	if err != nil {
		return fmt.Errorf("read import source: %w", err)
	}

	now := clk.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	drafts, err := ics.Import(body, ics.ImportConfig{
		Location:   conf.Location(),
		RangeStart: today,
		RangeEnd:   today.AddDate(0, 0, flags.importDays),
	})
	if err != nil {
		return err
	}

	created, skipped := 0, 0
	for _, d := range drafts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ctrl.SetDraft(d); err != nil {
			return err
		}
		if err := ctrl.SubmitCreate(ctx); err != nil {
			skipped++
			appLog.Info("import: event skipped", "title", d.Title, "date", d.Date, "reason", err.Error())
			continue
		}
		created++
	}

	appLog.Info("import finished", "created", created, "skipped", skipped)
	return nil
}

// runSnapshot serves the UI just long enough to capture a PNG of it.
func runSnapshot(ctx context.Context, conf *config.Config, srv *web.Server, out string) error {
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- web.StartServer(serveCtx, conf, srv) }()

	if err := waitHealthy(ctx, "http://"+conf.Listen+"/health", 5*time.Second); err != nil {
		return err
	}
	if err := capture.SchedulePNG(ctx, capture.OptionsFromConfig(conf, out)); err != nil {
		return err
	}

	stop()
	return <-errCh
}

func waitHealthy(ctx context.Context, url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return errors.New("web server did not become healthy")
}

func printEvents(w io.Writer, events []model.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEVENT\tDATE\tSTART\tEND")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", ev.ID, ev.Name, ev.Title, ev.Date, ev.StartTime, ev.EndTime)
	}
	return tw.Flush()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/evsched/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional .env file with EVSCHED_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch and print the event list, then exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG snapshot of the schedule page to this path and exit")
	flag.StringVar(&cfg.importSrc, "import", "", "Create events from an iCalendar file path or URL, then exit")
	flag.IntVar(&cfg.importDays, "import-days", 90, "How many days ahead to expand recurring events on -import")

	flag.Parse()

	return cfg
}
