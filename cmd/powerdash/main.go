package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/powerdash/internal/acquire"
	"github.com/lox/powerdash/internal/api"
	"github.com/lox/powerdash/internal/cache"
	"github.com/lox/powerdash/internal/geocode"
	"github.com/lox/powerdash/internal/maintenance"
	"github.com/lox/powerdash/internal/models"
	"github.com/lox/powerdash/internal/power"
)

type Globals struct {
	DataDir       string `help:"Directory for cached weather data." default:"data/cache" env:"POWERDASH_DATA_DIR"`
	MaxAgeHours   int    `help:"Cache freshness window in hours." default:"24" env:"POWERDASH_MAX_AGE_HOURS"`
	RetentionDays int    `help:"Days a cached payload survives before eviction." default:"7" env:"POWERDASH_RETENTION_DAYS"`
}

func (g *Globals) open() (*cache.Store, *cache.Tracker, *acquire.Service, error) {
	cfg := cache.Config{
		Dir:       g.DataDir,
		MaxAge:    time.Duration(g.MaxAgeHours) * time.Hour,
		Retention: time.Duration(g.RetentionDays) * 24 * time.Hour,
	}
	store, err := cache.NewStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open cache store: %w", err)
	}
	tracker, err := cache.NewTracker(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open tracking index: %w", err)
	}
	svc := acquire.NewService(store, tracker, power.NewClient(""))
	return store, tracker, svc, nil
}

type ServeCmd struct {
	Port                string        `help:"HTTP server port." default:"8080" env:"PORT"`
	MaintenanceInterval time.Duration `help:"How often cache maintenance runs." default:"1h" env:"POWERDASH_MAINTENANCE_INTERVAL"`
}

func (c *ServeCmd) Run(g *Globals) error {
	store, tracker, svc, err := g.open()
	if err != nil {
		return err
	}

	janitor := maintenance.NewJanitor(store, tracker, c.MaintenanceInterval)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	defer janitor.Stop()

	server := api.NewServer(svc, geocode.NewClient(""), c.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

type FetchCmd struct {
	Lat   float64 `help:"Latitude in degrees." required:""`
	Lon   float64 `help:"Longitude in degrees." required:""`
	Days  int     `help:"Rolling window in days." default:"30"`
	Start string  `help:"Explicit range start (YYYY-MM-DD)."`
	End   string  `help:"Explicit range end (YYYY-MM-DD)."`
}

func (c *FetchCmd) Run(g *Globals) error {
	_, _, svc, err := g.open()
	if err != nil {
		return err
	}

	req := acquire.Request{Location: models.Location{Latitude: c.Lat, Longitude: c.Lon}}
	if c.Start != "" || c.End != "" {
		start, err := time.Parse("2006-01-02", c.Start)
		if err != nil {
			return fmt.Errorf("parse start: %w", err)
		}
		end, err := time.Parse("2006-01-02", c.End)
		if err != nil {
			return fmt.Errorf("parse end: %w", err)
		}
		req.Start, req.End = &start, &end
	} else {
		req.Days = c.Days
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ds, cacheHit, err := svc.HistoricalData(ctx, req)
	if err != nil {
		return err
	}
	log.Printf("fetched %d rows for %s (cache hit: %v)", ds.Len(), req.Location.Key(), cacheHit)
	return nil
}

type GCCmd struct{}

func (c *GCCmd) Run(g *Globals) error {
	store, tracker, _, err := g.open()
	if err != nil {
		return err
	}
	maintenance.NewJanitor(store, tracker, time.Hour).RunOnce()
	return nil
}

var cli struct {
	Globals

	Serve ServeCmd `cmd:"" default:"withargs" help:"Run the dashboard server with periodic cache maintenance."`
	Fetch FetchCmd `cmd:"" help:"Fetch one window into the cache and exit."`
	GC    GCCmd    `cmd:"" name:"gc" help:"Run cache maintenance once and exit."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("powerdash"),
		kong.Description("Historical weather dashboard backed by the NASA POWER hourly API."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
