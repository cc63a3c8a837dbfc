package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"concertcal/internal/auth"
	"concertcal/internal/backend"
	"concertcal/internal/calendar"
	"concertcal/internal/capture"
	"concertcal/internal/commands"
	"concertcal/internal/config"
	"concertcal/internal/ics"
	appLog "concertcal/internal/log"
	"concertcal/internal/schedule"
	"concertcal/internal/screen"
	"concertcal/internal/source"
	"concertcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	month      string
	capture    string
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := commands.HashPassword(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("concertcal failed", err)
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	conf.ApplyEnv(os.Getenv)
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level, ok := appLog.ParseLevel(conf.LogLevel)
	if !ok {
		appLog.Warn("unknown log level, using info", "log_level", conf.LogLevel)
	}
	appLog.SetLevel(level)

	appLog.Info("concertcal starting",
		"version", version,
		"listen", conf.Listen,
		"backend", conf.Backend.BaseURL,
		"refresh", conf.RefreshCron,
		"stale_fetches", conf.StaleFetches,
		"ics_count", len(conf.ICS),
		"basic_auth", conf.BasicAuth != nil,
		"once", flags.once,
	)

	start := calendar.MonthKeyOf(time.Now())
	if flags.month != "" {
		if start, err = calendar.ParseMonthKey(flags.month); err != nil {
			return err
		}
	}
	policy, err := calendar.ParseStalePolicy(conf.StaleFetches)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tokens, err := backend.NewTokenStore(conf.TokenFile)
	if err != nil {
		return err
	}
	client, err := backend.NewClient(conf.Backend.BaseURL, conf.Backend.Timeout, tokens)
	if err != nil {
		return err
	}
	fetcher, err := buildFetcher(conf, client)
	if err != nil {
		return err
	}

	if flags.once {
		return runOnce(ctx, os.Stdout, fetcher, start)
	}
	return serve(ctx, cancel, conf, flags, start, policy, tokens, client, fetcher)
}

// buildFetcher combines the backend with the configured ICS feeds.
func buildFetcher(conf *config.Config, client *backend.Client) (*source.Multi, error) {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		if c.URL == "" {
			continue
		}
		sources = append(sources, ics.Source{ID: c.ID, URL: c.URL})
	}
	if len(sources) == 0 {
		return source.NewMulti(client)
	}
	return source.NewMulti(client, ics.NewFeed(sources, conf.Backend.Timeout, time.Local))
}

// runOnce prints one month. The grid is printed even when the fetch fails;
// the fetch error is still returned so the exit status reflects it.
func runOnce(ctx context.Context, w io.Writer, fetcher calendar.Fetcher, key calendar.MonthKey) error {
	concerts, fetchErr := fetcher.FetchConcerts(ctx, key.Year, key.APIMonth())
	if errors.Is(fetchErr, backend.ErrAuth) {
		fmt.Fprintln(os.Stderr, "Not logged in: start the server and sign in at /login.")
	}
	if err := commands.PrintMonth(w, key, concerts); err != nil {
		return err
	}
	if fetchErr != nil {
		return fmt.Errorf("fetch %s: %w", key, fetchErr)
	}
	return nil
}

func serve(
	ctx context.Context,
	cancel context.CancelFunc,
	conf *config.Config,
	flags flagConfig,
	start calendar.MonthKey,
	policy calendar.StalePolicy,
	tokens *backend.TokenStore,
	client *backend.Client,
	fetcher calendar.Fetcher,
) error {
	go func() {
		if err := tokens.Watch(ctx); err != nil {
			appLog.Error("token watcher stopped", err, "path", tokens.Path())
		}
	}()

	sc, err := screen.New(ctx, start, fetcher, tokens, policy)
	if err != nil {
		return err
	}
	sc.Refresh()

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.Listen, err)
	}
	baseURL := "http://" + loopbackAddr(ln.Addr())

	var basic auth.Basic
	if conf.BasicAuth != nil {
		basic = auth.Basic{Username: conf.BasicAuth.Username, Hash: conf.BasicAuth.PasswordHash}
	}

	var srv *web.Server
	captureOpts := func() capture.Options {
		return capture.Options{
			URL:    srv.CalendarURL(baseURL),
			Width:  conf.Capture.Width,
			Height: conf.Capture.Height,
		}
	}
	srv, err = web.NewServer(web.Options{
		Screen:      sc,
		Fetcher:     fetcher,
		Follower:    client,
		Auth:        basic,
		PreviewPath: conf.Capture.OutputPath,
		Snapshot: func(ctx context.Context) ([]byte, error) {
			return capture.CalendarPNG(ctx, captureOpts())
		},
	})
	if err != nil {
		ln.Close()
		return err
	}

	var snapshot schedule.SnapshotFunc
	if path := conf.Capture.OutputPath; path != "" {
		snapshot = func(ctx context.Context) error {
			return capture.CalendarPNGToFile(ctx, captureOpts(), path)
		}
	}
	sched, err := schedule.New(conf.RefreshCron, sc, snapshot)
	if err != nil {
		ln.Close()
		return err
	}
	schedDone, err := sched.Start(ctx)
	if err != nil {
		ln.Close()
		return err
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", baseURL)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	if flags.capture != "" {
		if runErr = sc.WaitReady(ctx); runErr == nil {
			runErr = capture.CalendarPNGToFile(ctx, captureOpts(), flags.capture)
		}
		cancel()
	} else {
		select {
		case <-ctx.Done():
			appLog.Info("signal received, shutting down")
		case err := <-serveErr:
			runErr = err
			cancel()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("error shutting down server", err)
	}
	<-schedDone
	sc.Wait()

	appLog.Info("concertcal exiting")
	return runErr
}

// loopbackAddr turns a wildcard listen address into one the local
// snapshot browser can reach.
func loopbackAddr(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print one month with its concerts and exit")
	flag.StringVar(&cfg.month, "month", "", "Month to start at, YYYY-MM (default: current month)")
	flag.StringVar(&cfg.capture, "capture", "", "Serve, write one PNG snapshot to this path and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: concertcal [OPTIONS]\n       concertcal hash-password [OPTIONS]\n\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	return cfg
}
