// Package reports keeps a persisted monthly snapshot of the USERS and
// PARKING aggregates, generating the current month once it is missing and
// finalising the previous month once after it ends.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"bpark-backend/internal/model"
	"bpark-backend/internal/store"
)

// Builder aggregates the history of one month into report rows.
type Builder interface {
	BuildReport(ctx context.Context, kind model.ReportType, year, month int) ([]map[string]string, int64, error)
}

// Generator writes monthly snapshots.
type Generator struct {
	store   store.Store
	builder Builder
	loc     *time.Location
	now     func() time.Time
}

// NewGenerator creates a generator that works in the lot timezone.
func NewGenerator(s store.Store, b Builder, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{store: s, builder: b, loc: loc, now: time.Now}
}

// Run generates missing snapshots now and then shortly after every local midnight.
func (g *Generator) Run(ctx context.Context) {
	log.Info("Starting report generator...")
	g.logErr(g.GenerateMissing(ctx))

	timer := time.NewTimer(g.untilNextDay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Report generator shutting down.")
			return
		case <-timer.C:
			g.logErr(g.GenerateMissing(ctx))
			timer.Reset(g.untilNextDay())
		}
	}
}

func (g *Generator) logErr(err error) {
	if err != nil {
		log.WithError(err).Error("Report generation failed")
	}
}

func (g *Generator) untilNextDay() time.Duration {
	now := g.now().In(g.loc)
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 5, 0, g.loc)
	return next.Sub(now)
}

// GenerateMissing writes the current month's snapshots when they do not exist
// yet, and rewrites last month's snapshots if they were taken before the month ended.
func (g *Generator) GenerateMissing(ctx context.Context) error {
	now := g.now().In(g.loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, g.loc)
	previous := monthStart.AddDate(0, -1, 0)

	var errs []error
	for _, kind := range []model.ReportType{model.ReportUsers, model.ReportParking} {
		if err := g.ensure(ctx, kind, previous.Year(), int(previous.Month()), monthStart); err != nil {
			errs = append(errs, err)
		}
		if err := g.ensure(ctx, kind, now.Year(), int(now.Month()), time.Time{}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ensure writes the snapshot if it is missing, or if finalAfter is set and
// the stored snapshot predates it.
func (g *Generator) ensure(ctx context.Context, kind model.ReportType, year, month int, finalAfter time.Time) error {
	existing, err := g.store.GetReport(ctx, kind, year, month)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !finalAfter.IsZero() {
			// Never snapshot a past month that had no snapshot while it ran.
			return nil
		}
	case err != nil:
		return err
	case finalAfter.IsZero() || !existing.GeneratedAt.Before(finalAfter):
		return nil
	}
	return g.Generate(ctx, kind, year, month)
}

// Generate builds and stores one snapshot unconditionally.
func (g *Generator) Generate(ctx context.Context, kind model.ReportType, year, month int) error {
	rows, users, err := g.builder.BuildReport(ctx, kind, year, month)
	if err != nil {
		return fmt.Errorf("build %s report for %04d-%02d: %w", kind, year, month, err)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s report: %w", kind, err)
	}
	snapshot := &model.ReportSnapshot{
		Type:        kind,
		Year:        year,
		Month:       month,
		Data:        datatypes.JSON(data),
		UsersCount:  users,
		GeneratedAt: g.now().UTC(),
	}
	if err := g.store.SaveReport(ctx, snapshot); err != nil {
		return err
	}
	log.WithFields(log.Fields{"type": kind, "year": year, "month": month, "rows": len(rows)}).Info("Report snapshot saved")
	return nil
}
