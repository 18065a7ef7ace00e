package parking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"bpark-backend/internal/model"
	"bpark-backend/internal/store"
)

// CurrentParking returns the live table of spaces. The description carries
// the percentage of spaces in use, rounded up.
func (e *Engine) CurrentParking(ctx context.Context) (Result, error) {
	rows, err := e.store.ParkingTable(ctx)
	if err != nil {
		return Result{}, err
	}
	used := 0
	table := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		entry := map[string]string{
			"parking_space":     strconv.Itoa(row.ParkingSpace),
			"status":            row.Status,
			"confirmation_code": "",
			"subscriber_id":     "",
		}
		if row.ConfirmationCode != nil {
			entry["confirmation_code"] = strconv.Itoa(*row.ConfirmationCode)
		}
		if row.SubscriberID != nil {
			entry["subscriber_id"] = strconv.FormatInt(*row.SubscriberID, 10)
		}
		if row.Status != string(model.SpaceAvailable) {
			used++
		}
		table = append(table, entry)
	}
	percent := 0
	if len(rows) > 0 {
		percent = int(math.Ceil(100 * float64(used) / float64(len(rows))))
	}
	return Result{Code: StatusOK, Description: strconv.Itoa(percent), Table: table}, nil
}

// BuildReport aggregates the history of one calendar month.
//
// USERS has one row per ordinary subscriber with a count per event type,
// including subscribers with no activity. PARKING has one row per day that
// saw deposits. The second return value is the number of ordinary subscribers.
func (e *Engine) BuildReport(ctx context.Context, kind model.ReportType, year, month int) ([]map[string]string, int64, error) {
	events, err := e.store.ListMonthEvents(ctx, year, month)
	if err != nil {
		return nil, 0, err
	}
	users, err := e.store.ListSubscriberIDs(ctx, model.RoleUser)
	if err != nil {
		return nil, 0, err
	}

	switch kind {
	case model.ReportUsers:
		counts := make(map[int64]map[model.EventType]int, len(users))
		for _, id := range users {
			counts[id] = make(map[model.EventType]int)
		}
		for _, ev := range events {
			if c, ok := counts[ev.SubscriberID]; ok {
				c[ev.EventType]++
			}
		}
		rows := make([]map[string]string, 0, len(users))
		for _, id := range users {
			row := map[string]string{"user": strconv.FormatInt(id, 10)}
			for _, t := range model.EventTypes {
				row[string(t)] = strconv.Itoa(counts[id][t])
			}
			rows = append(rows, row)
		}
		return rows, int64(len(users)), nil

	case model.ReportParking:
		perDay := make(map[string]int)
		for _, ev := range events {
			if ev.EventType == model.EventDeposited {
				perDay[ev.EventDate]++
			}
		}
		days := make([]string, 0, len(perDay))
		for day := range perDay {
			days = append(days, day)
		}
		sort.Strings(days)
		rows := make([]map[string]string, 0, len(days))
		for _, day := range days {
			rows = append(rows, map[string]string{"day": day, "capacity": strconv.Itoa(perDay[day])})
		}
		return rows, int64(len(users)), nil
	}
	return nil, 0, fmt.Errorf("unknown report type %q", kind)
}

// Report returns a stored monthly snapshot.
func (e *Engine) Report(ctx context.Context, kind model.ReportType, year, month int) (Result, error) {
	snapshot, err := e.store.GetReport(ctx, kind, year, month)
	if errors.Is(err, store.ErrNotFound) {
		return reply(StatusNotFound, fmt.Sprintf("No %s report stored for %04d-%02d.", kind, year, month)), nil
	}
	if err != nil {
		return Result{}, err
	}
	var table []map[string]string
	if err := json.Unmarshal(snapshot.Data, &table); err != nil {
		return Result{}, fmt.Errorf("decode %s report for %04d-%02d: %w", kind, year, month, err)
	}
	return Result{
		Code:        StatusOK,
		Description: string(kind),
		Args: map[string]string{
			"report_type":  string(kind),
			"report_month": fmt.Sprintf("%02d", month),
			"report_year":  strconv.Itoa(year),
			"users_count":  strconv.FormatInt(snapshot.UsersCount, 10),
			"generated_at": snapshot.GeneratedAt.In(e.cfg.Location).Format(dateLayout + " " + clockLayout),
		},
		Table: table,
	}, nil
}
