package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch-dashboard/internal/backend"
	"dispatch-dashboard/internal/config"
	"dispatch-dashboard/internal/hub"
	"dispatch-dashboard/internal/journal"
	"dispatch-dashboard/internal/logging"
	"dispatch-dashboard/internal/metrics"
	"dispatch-dashboard/internal/mutation"
	"dispatch-dashboard/internal/server"
	"dispatch-dashboard/internal/session"
	"dispatch-dashboard/internal/store"
	"dispatch-dashboard/internal/tracker"
)

var (
	configPath      = flag.String("config", "", "YAML config file")
	httpPort        = flag.Int("port", 8080, "HTTP port")
	shutdownTimeout = flag.Duration("shutdown_timeout", 10*time.Second, "HTTP server shutdown timeout")
	backendURL      = flag.String("backend_url", "", "dispatch backend base URL")
	gtfsrtURL       = flag.String("gtfsrt_url", "", "GTFS-RT vehicle positions URL (protobuf)")
	siriJSONURL     = flag.String("siri_json_url", "", "SIRI VehicleMonitoring JSON URL")
	siriXMLURL      = flag.String("siri_xml_url", "", "SIRI VehicleMonitoring XML URL")
	refreshMinSecs  = flag.Int("refresh_min_secs", 0, "Minimum tracker refresh interval in seconds (0 disables polling)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "dispatchd stopped", logging.Err(err))
		os.Exit(1)
	}
}

// loadConfig layers defaults, the YAML file, DISPATCH_* variables and then
// any flag given explicitly on the command line.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.HTTP.Port = *httpPort
		case "shutdown_timeout":
			cfg.HTTP.ShutdownTimeout = *shutdownTimeout
		case "backend_url":
			cfg.Backend.BaseURL = *backendURL
		case "gtfsrt_url":
			cfg.Tracker.GtfsRtURL = *gtfsrtURL
		case "siri_json_url":
			cfg.Tracker.SiriJSONURL = *siriJSONURL
		case "siri_xml_url":
			cfg.Tracker.SiriXMLURL = *siriXMLURL
		case "refresh_min_secs":
			cfg.Tracker.RefreshInterval = time.Duration(*refreshMinSecs) * time.Second
		}
	})
	return cfg, cfg.Validate()
}

func run(cfg config.Config, log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, closeSessions, err := openSessions(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer closeSessions()

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Endpoints, cfg.Backend.Timeout, sessions,
		backend.WithOrgID(cfg.Backend.OrgID))

	st := store.New()
	collector, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	opts := []mutation.Option{mutation.WithLogger(log), mutation.WithObserver(collector)}
	if cfg.Journal.Dir != "" {
		jw := journal.NewWriter(cfg.Journal.Dir, log)
		defer jw.Close()
		opts = append(opts, mutation.WithObserver(jw))
	}
	if src := selectFeed(cfg.Tracker); src != nil {
		opts = append(opts, mutation.WithTrackerSource(src))
	}
	coord := mutation.New(client, st, opts...)

	h := hub.New(st.Snapshot, log)
	defer h.Close()
	st.OnChange(h.Listener())
	st.OnChange(collector.StoreListener(st))

	if tok, _ := sessions.Token(ctx); tok != "" {
		if err := coord.Load(ctx); err != nil {
			log.Warn(ctx, "initial load failed", logging.Err(err))
		} else {
			log.Info(ctx, "collections loaded",
				logging.Int("hospitals", len(st.Hospitals())),
				logging.Int("cars", len(st.Cars())),
				logging.Int("users", len(st.Users())))
		}
	}
	go coord.PollPositions(ctx, cfg.Tracker.RefreshInterval, cfg.Tracker.Timeout)

	srv := server.New(server.Deps{
		Store:       st,
		Coordinator: coord,
		Auth:        client,
		Sessions:    sessions,
		Hub:         h,
		Metrics:     collector,
		Logger:      log,
		StaticDir:   cfg.HTTP.StaticDir,
	})
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting", logging.String("addr", fmt.Sprintf("http://localhost:%d/", cfg.HTTP.Port)))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(context.Background(), "shutdown initiated")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info(sctx, "HTTP server shut down successfully")
	return nil
}

// openSessions opens the configured token store and its closer.
func openSessions(ctx context.Context, cfg config.SessionConfig) (session.Store, func(), error) {
	switch {
	case cfg.Driver == "postgres":
		p, err := session.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case cfg.Driver == "memory" || cfg.Path == "":
		return session.NewMemory(), func() {}, nil
	}
	s, err := session.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

// selectFeed returns the configured tracker feed, or nil when none is set.
// Validate has already rejected configs naming more than one.
func selectFeed(cfg config.TrackerConfig) tracker.Source {
	switch {
	case cfg.GtfsRtURL != "":
		return tracker.NewGtfsRtSource(cfg.GtfsRtURL, cfg.Timeout)
	case cfg.SiriJSONURL != "":
		return tracker.NewSiriJSONSource(cfg.SiriJSONURL, cfg.Timeout)
	case cfg.SiriXMLURL != "":
		return tracker.NewSiriXMLSource(cfg.SiriXMLURL, cfg.Timeout)
	}
	return nil
}
