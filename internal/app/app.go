package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"residence-dining/internal/config"
	"residence-dining/internal/cutoff"
	"residence-dining/internal/dining"
	"residence-dining/internal/metrics"
	"residence-dining/internal/order"
	"residence-dining/internal/report"
	"residence-dining/internal/session"
	"residence-dining/internal/storage"
)

// App holds the application's dependencies.
type App struct {
	client       dining.Client
	sess         *session.Manager
	reportStore  *storage.ReportStore
	metricsStore *metrics.Store
	cfg          *config.Config
}

// NewApp creates and initializes a new App instance.
func NewApp(
	client dining.Client,
	sess *session.Manager,
	reportStore *storage.ReportStore,
	metricsStore *metrics.Store,
	cfg *config.Config,
) *App {
	return &App{
		client:       client,
		sess:         sess,
		reportStore:  reportStore,
		metricsStore: metricsStore,
		cfg:          cfg,
	}
}

// NewGate builds the cutoff gate from the configured hours and timezone.
func NewGate(cfg *config.Config) *cutoff.Gate {
	return cutoff.NewGate(map[order.MealPeriod]int{
		order.Breakfast: cfg.BreakfastCutoffHour,
		order.Lunch:     cfg.LunchCutoffHour,
		order.Dinner:    cfg.DinnerCutoffHour,
	}, cfg.Location)
}

// EnsureSession restores the saved session or logs in with the configured
// service account.
func (a *App) EnsureSession(ctx context.Context) (*session.Session, error) {
	if err := a.sess.Restore(ctx); err != nil {
		return nil, err
	}
	if s, err := a.sess.Current(); err == nil {
		return s, nil
	}
	if a.cfg.AdminRoomNo == "" || a.cfg.AdminPassword == "" {
		return nil, fmt.Errorf("no saved session and DINING_ADMIN_ROOM/DINING_ADMIN_PASSWORD not set")
	}
	return a.client.Login(ctx, a.cfg.AdminRoomNo, a.cfg.AdminPassword)
}

// GenerateDailyReport fetches the snapshot of every room of the session's
// profile for date, archives the aggregated report and returns it. Rooms
// are fetched one at a time; a room that fails is logged and skipped, but a
// rejected session aborts the run.
func (a *App) GenerateDailyReport(ctx context.Context, date string) (*report.Daily, error) {
	if _, err := time.Parse(cutoff.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	s, err := a.EnsureSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if len(s.Profile.Rooms) == 0 {
		return nil, fmt.Errorf("profile %s has no rooms", s.Profile.RoomNo)
	}

	log.Printf("Generating report for %s over %d rooms...", date, len(s.Profile.Rooms))
	var snaps []*order.MealSnapshot
	for _, room := range s.Profile.Rooms {
		snap, err := a.client.FetchMenu(ctx, room.ID, date)
		if err != nil {
			if errors.Is(err, dining.ErrUnauthorized) || ctx.Err() != nil {
				return nil, err
			}
			log.Printf("Warning: skipping room %s: %s", room.Name, dining.Notice(err))
			continue
		}
		snaps = append(snaps, snap)
	}

	d := report.Build(date, snaps)
	if a.reportStore != nil {
		path, err := a.reportStore.Save(d, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to archive report: %w", err)
		}
		if err := a.reportStore.RemoveStaleVersions(date); err != nil {
			log.Printf("Warning: failed to clean up stale versions for %s: %v", date, err)
		}
		log.Printf("Report for %s archived at %s", date, path)
	}
	return d, nil
}

// DailyReport returns the archived report for date when cached is set and a
// version exists, and generates a fresh one otherwise.
func (a *App) DailyReport(ctx context.Context, date string, cached bool) (*report.Daily, error) {
	if cached && a.reportStore != nil && a.reportStore.Exists(date) {
		d, err := a.reportStore.Latest(date)
		if err == nil {
			log.Printf("Serving archived report for %s", date)
			return d, nil
		}
		log.Printf("Warning: failed to load archived report for %s, regenerating: %v", date, err)
	}
	return a.GenerateDailyReport(ctx, date)
}

// CleanupSubmissions removes submission log entries older than days.
func (a *App) CleanupSubmissions(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", days)
	}
	n, err := a.metricsStore.Cleanup(ctx, days)
	if err != nil {
		return 0, err
	}
	log.Printf("Removed %d submission log entries older than %d days", n, days)
	return n, nil
}
