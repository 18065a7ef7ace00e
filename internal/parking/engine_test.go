package parking

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bpark-backend/config"
	"bpark-backend/internal/db"
	"bpark-backend/internal/model"
	"bpark-backend/internal/notification"
	"bpark-backend/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recordingNotifier) Notify(ev notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) Events() []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Event(nil), r.events...)
}

type harness struct {
	engine *Engine
	store  store.Store
	db     *gorm.DB
	clock  *fakeClock
	notes  *recordingNotifier
	subs   int
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// base is 09:00 local time on a Sunday in the lot timezone (UTC in tests).
var base = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, spaces int, ratio float64, opts ...Option) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(t.Name(), "_"))
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.ProvisionSpaces(context.Background(), gormDB, spaces))

	cfg := config.Defaults().Parking
	cfg.TotalSpots = spaces
	if ratio > 0 {
		cfg.ReservationRatio = ratio
	}
	clock := &fakeClock{t: base}
	notes := &recordingNotifier{}
	s := store.NewGormStore(gormDB)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &harness{
		engine: New(s, notes, cfg, opts...),
		store:  s,
		db:     gormDB,
		clock:  clock,
		notes:  notes,
	}
}

func (h *harness) subscriber(t *testing.T) int64 {
	t.Helper()
	h.subs++
	res, err := h.engine.CreateSubscriber(context.Background(), NewSubscriber{
		Name:     fmt.Sprintf("Driver %d", h.subs),
		Email:    fmt.Sprintf("driver%d@example.com", h.subs),
		Phone:    fmt.Sprintf("050000%04d", h.subs),
		Password: "secret",
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Code, res.Description)
	id, err := strconv.ParseInt(res.Description, 10, 64)
	require.NoError(t, err)
	return id
}

func (h *harness) order(t *testing.T, number string) *model.Order {
	t.Helper()
	n, err := strconv.ParseInt(number, 10, 64)
	require.NoError(t, err)
	order, err := h.store.GetOrder(context.Background(), n)
	require.NoError(t, err)
	return order
}

func (h *harness) space(t *testing.T, number int) model.ParkingSpace {
	t.Helper()
	var space model.ParkingSpace
	require.NoError(t, h.db.First(&space, "number = ?", number).Error)
	return space
}

func mustCode(t *testing.T, res Result) int {
	t.Helper()
	require.Equal(t, StatusOK, res.Code, res.Description)
	code, err := strconv.Atoi(res.Description)
	require.NoError(t, err)
	require.GreaterOrEqual(t, code, 1000)
	require.LessOrEqual(t, code, 9999)
	return code
}

func TestDepositWalkIn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, 0)
	sub := h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	code := mustCode(t, res)

	order := h.order(t, res.Args["order_number"])
	assert.Equal(t, model.OrderActive, order.Status)
	assert.Equal(t, code, order.ConfirmationCode)
	assert.Equal(t, "2026-10-18", order.OrderDate)
	assert.Equal(t, "09:00:00", order.OrderTime)

	space := h.space(t, order.ParkingSpace)
	assert.Equal(t, model.SpaceOccupied, space.Status)
	require.NotNil(t, space.ConfirmationCode)
	assert.Equal(t, code, *space.ConfirmationCode)

	at, err := h.store.LastEventAt(ctx, order.OrderNumber, model.EventDeposited)
	require.NoError(t, err)
	assert.True(t, at.Equal(base))

	again, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, again.Code)
}

func TestDepositWalkInWithPendingReservation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 0)
	sub := h.subscriber(t)

	res, err := h.engine.Reserve(ctx, sub, base.Add(3*time.Hour))
	require.NoError(t, err)
	mustCode(t, res)

	walkIn, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusForbidden, walkIn.Code)
}

func TestDepositLotFull(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1, 0)
	first, second := h.subscriber(t), h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, first, 0)
	require.NoError(t, err)
	mustCode(t, res)

	res, err = h.engine.DepositVehicle(ctx, second, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Code)
}

func TestDepositConcurrentWalkIns(t *testing.T) {
	ctx := context.Background()
	const spaces, drivers = 4, 7
	h := newHarness(t, spaces, 0)
	ids := make([]int64, drivers)
	for i := range ids {
		ids[i] = h.subscriber(t)
	}

	results := make([]Result, drivers)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			res, err := h.engine.DepositVehicle(ctx, id, 0)
			assert.NoError(t, err)
			results[i] = res
		}(i, id)
	}
	wg.Wait()

	granted := map[string]bool{}
	rejected := 0
	for _, res := range results {
		switch res.Code {
		case StatusOK:
			space := res.Args["parking_space"]
			assert.False(t, granted[space], "space %s granted twice", space)
			granted[space] = true
		case StatusNotFound:
			rejected++
		default:
			t.Errorf("unexpected answer %d: %s", res.Code, res.Description)
		}
	}
	assert.Len(t, granted, spaces)
	assert.Equal(t, drivers-spaces, rejected)
}

func TestDepositIssuesUnusedCode(t *testing.T) {
	ctx := context.Background()
	codes := []int{1111, 1111, 1111, 2222}
	var mu sync.Mutex
	next := func() int {
		mu.Lock()
		defer mu.Unlock()
		c := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return c
	}
	h := newHarness(t, 3, 0, WithCodeSource(next))
	first, second := h.subscriber(t), h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, first, 0)
	require.NoError(t, err)
	assert.Equal(t, 1111, mustCode(t, res))

	res, err = h.engine.DepositVehicle(ctx, second, 0)
	require.NoError(t, err)
	assert.Equal(t, 2222, mustCode(t, res))
}

func TestDepositReservationWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 0)
	sub := h.subscriber(t)
	start := base.Add(time.Hour)

	res, err := h.engine.Reserve(ctx, sub, start)
	require.NoError(t, err)
	mustCode(t, res)
	number, err := strconv.ParseInt(res.Args["order_number"], 10, 64)
	require.NoError(t, err)

	h.clock.Set(start.Add(-time.Second))
	early, err := h.engine.DepositVehicle(ctx, sub, number)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, early.Code)

	h.clock.Set(start.Add(15 * time.Minute))
	onTime, err := h.engine.DepositVehicle(ctx, sub, number)
	require.NoError(t, err)
	code := mustCode(t, onTime)

	order := h.order(t, res.Args["order_number"])
	assert.Equal(t, model.OrderActive, order.Status)
	assert.Equal(t, code, order.ConfirmationCode)
	space := h.space(t, order.ParkingSpace)
	assert.Equal(t, model.SpaceOccupied, space.Status)
	require.NotNil(t, space.ConfirmationCode)
	assert.Equal(t, code, *space.ConfirmationCode)
}

func TestDepositReservationAfterGrace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 0)
	sub := h.subscriber(t)
	start := base.Add(time.Hour)

	res, err := h.engine.Reserve(ctx, sub, start)
	require.NoError(t, err)
	number, err := strconv.ParseInt(res.Args["order_number"], 10, 64)
	require.NoError(t, err)

	h.clock.Set(start.Add(15*time.Minute + time.Second))
	late, err := h.engine.DepositVehicle(ctx, sub, number)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, late.Code)
}

func TestDepositReservationFallsBackWhenSpaceHeld(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2, 1)
	owner, walker := h.subscriber(t), h.subscriber(t)
	start := base.Add(time.Hour)

	res, err := h.engine.Reserve(ctx, owner, start)
	require.NoError(t, err)
	require.Equal(t, "1", res.Args["parking_space"])
	number, _ := strconv.ParseInt(res.Args["order_number"], 10, 64)

	walkIn, err := h.engine.DepositVehicle(ctx, walker, 0)
	require.NoError(t, err)
	require.Equal(t, "1", walkIn.Args["parking_space"])

	h.clock.Set(start)
	deposit, err := h.engine.DepositVehicle(ctx, owner, number)
	require.NoError(t, err)
	mustCode(t, deposit)
	assert.Equal(t, "2", deposit.Args["parking_space"])
}

func TestDepositSomeoneElsesReservation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 0)
	owner, other := h.subscriber(t), h.subscriber(t)

	res, err := h.engine.Reserve(ctx, owner, base.Add(time.Hour))
	require.NoError(t, err)
	number, _ := strconv.ParseInt(res.Args["order_number"], 10, 64)

	h.clock.Set(base.Add(time.Hour))
	got, err := h.engine.DepositVehicle(ctx, other, number)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, got.Code)
}

func TestPickup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2, 0)
	sub := h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	code := mustCode(t, res)

	missing, err := h.engine.Pickup(ctx, sub, 9999)
	require.NoError(t, err)
	if code != 9999 {
		assert.Equal(t, StatusNotFound, missing.Code)
	}

	h.clock.Advance(time.Hour)
	picked, err := h.engine.Pickup(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, picked.Code)

	order := h.order(t, res.Args["order_number"])
	assert.Equal(t, model.OrderComplete, order.Status)
	space := h.space(t, order.ParkingSpace)
	assert.Equal(t, model.SpaceAvailable, space.Status)
	assert.Nil(t, space.ConfirmationCode)

	_, err = h.store.LastEventAt(ctx, order.OrderNumber, model.EventPickedUp)
	assert.NoError(t, err)

	again, err := h.engine.Pickup(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusForbidden, again.Code)
}

func TestPickupCancelledReservation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 0)
	sub := h.subscriber(t)

	res, err := h.engine.Reserve(ctx, sub, base.Add(time.Hour))
	require.NoError(t, err)
	code := mustCode(t, res)

	h.clock.Set(base.Add(time.Hour + 16*time.Minute))
	overdue, err := h.engine.OverduePending(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	moved, err := h.engine.CancelReservation(ctx, overdue[0])
	require.NoError(t, err)
	require.True(t, moved)

	got, err := h.engine.Pickup(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusWasCancelled, got.Code)
}

func TestExtend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, 0)
	sub := h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	code := mustCode(t, res)

	ext, err := h.engine.Extend(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, ext.Code)
	assert.True(t, h.order(t, res.Args["order_number"]).IsExtended)

	twice, err := h.engine.Extend(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, twice.Code)

	_, err = h.engine.Pickup(ctx, sub, code)
	require.NoError(t, err)
	done, err := h.engine.Extend(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyCompleted, done.Code)
}

func TestExtendLateOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, 0)
	sub := h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	code := mustCode(t, res)

	h.clock.Advance(4*time.Hour + time.Minute)
	overdue, err := h.engine.OverdueActive(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	_, err = h.engine.MarkLate(ctx, overdue[0])
	require.NoError(t, err)

	got, err := h.engine.Extend(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusForbidden, got.Code)

	// A late vehicle can still be collected.
	picked, err := h.engine.Pickup(ctx, sub, code)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, picked.Code)
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 0)
	sub := h.subscriber(t)
	start := base.Add(26 * time.Hour)

	res, err := h.engine.Reserve(ctx, sub, start)
	require.NoError(t, err)
	mustCode(t, res)
	order := h.order(t, res.Args["order_number"])
	assert.Equal(t, model.OrderPending, order.Status)
	assert.Equal(t, "2026-10-19", order.OrderDate)
	assert.Equal(t, "11:00:00", order.OrderTime)
	assert.Equal(t, model.SpaceAvailable, h.space(t, order.ParkingSpace).Status)

	dup, err := h.engine.Reserve(ctx, sub, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, dup.Code)

	past, err := h.engine.Reserve(ctx, sub, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusBadRequest, past.Code)
}

func TestReserveDailyCap(t *testing.T) {
	ctx := context.Background()
	// ceil(0.4 * 5) = 2 orders per day.
	h := newHarness(t, 5, 0.4)
	start := base.Add(2 * time.Hour)

	for i := 0; i < 2; i++ {
		res, err := h.engine.Reserve(ctx, h.subscriber(t), start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		mustCode(t, res)
	}

	res, err := h.engine.Reserve(ctx, h.subscriber(t), start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusForbidden, res.Code)

	// Another day is unaffected.
	res, err = h.engine.Reserve(ctx, h.subscriber(t), start.Add(24*time.Hour))
	require.NoError(t, err)
	mustCode(t, res)
}

func TestReserveSameSlotUsesAnotherSpace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 1)
	start := base.Add(2 * time.Hour)

	first, err := h.engine.Reserve(ctx, h.subscriber(t), start)
	require.NoError(t, err)
	second, err := h.engine.Reserve(ctx, h.subscriber(t), start)
	require.NoError(t, err)

	mustCode(t, first)
	mustCode(t, second)
	assert.NotEqual(t, first.Args["parking_space"], second.Args["parking_space"])
}

func TestFindSpaceFreeAtIgnoresCancelled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1, 1)
	sub := h.subscriber(t)

	cancelled := &model.Order{SubscriberID: sub, ParkingSpace: 1, OrderDate: "2026-10-18", OrderTime: "12:00:00",
		ScheduledAt: base.Add(3 * time.Hour), ConfirmationCode: 4444, Status: model.OrderCancelled}
	require.NoError(t, h.store.CreateOrder(ctx, cancelled))

	space, err := h.store.FindSpaceFreeAt(ctx, "2026-10-18", "12:00:00")
	require.NoError(t, err)
	assert.Equal(t, 1, space)

	booked := &model.Order{SubscriberID: sub, ParkingSpace: 1, OrderDate: "2026-10-18", OrderTime: "12:00:00",
		ScheduledAt: base.Add(3 * time.Hour), ConfirmationCode: 5555, Status: model.OrderPending}
	require.NoError(t, h.store.CreateOrder(ctx, booked))

	_, err = h.store.FindSpaceFreeAt(ctx, "2026-10-18", "12:00:00")
	assert.ErrorIs(t, err, store.ErrNoSpace)
}

func TestOverdueActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, 0)
	plain, extended := h.subscriber(t), h.subscriber(t)

	_, err := h.engine.DepositVehicle(ctx, plain, 0)
	require.NoError(t, err)
	res, err := h.engine.DepositVehicle(ctx, extended, 0)
	require.NoError(t, err)
	ext, err := h.engine.Extend(ctx, extended, mustCode(t, res))
	require.NoError(t, err)
	require.Equal(t, StatusOK, ext.Code)

	h.clock.Set(base.Add(3*time.Hour + 59*time.Minute))
	overdue, err := h.engine.OverdueActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	h.clock.Set(base.Add(4*time.Hour + time.Minute))
	overdue, err = h.engine.OverdueActive(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, plain, overdue[0].SubscriberID)

	moved, err := h.engine.MarkLate(ctx, overdue[0])
	require.NoError(t, err)
	assert.True(t, moved)
	late := h.order(t, strconv.FormatInt(overdue[0].OrderNumber, 10))
	assert.Equal(t, model.OrderLate, late.Status)
	assert.True(t, late.IsNotified)

	// Running the scan again must not pick the same order up twice.
	moved, err = h.engine.MarkLate(ctx, overdue[0])
	require.NoError(t, err)
	assert.False(t, moved)

	h.clock.Set(base.Add(8*time.Hour + time.Minute))
	overdue, err = h.engine.OverdueActive(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, extended, overdue[0].SubscriberID)
}

func TestOverduePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5, 0)
	sub := h.subscriber(t)
	start := base.Add(time.Hour)

	_, err := h.engine.Reserve(ctx, sub, start)
	require.NoError(t, err)

	h.clock.Set(start.Add(14 * time.Minute))
	overdue, err := h.engine.OverduePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	h.clock.Set(start.Add(16 * time.Minute))
	overdue, err = h.engine.OverduePending(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	moved, err := h.engine.CancelReservation(ctx, overdue[0])
	require.NoError(t, err)
	assert.True(t, moved)
	_, err = h.store.LastEventAt(ctx, overdue[0].OrderNumber, model.EventCancelled)
	assert.NoError(t, err)

	overdue, err = h.engine.OverduePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestCreateAndEditSubscriber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1, 0)
	first := h.subscriber(t)
	h.subscriber(t)

	dupEmail, err := h.engine.CreateSubscriber(ctx, NewSubscriber{Name: "X", Email: "driver1@example.com", Phone: "0599999999", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, dupEmail.Code)
	assert.Equal(t, "Email already in use.", dupEmail.Description)

	dupPhone, err := h.engine.CreateSubscriber(ctx, NewSubscriber{Name: "X", Email: "new@example.com", Phone: "0500000001", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, dupPhone.Code)
	assert.Equal(t, "Phone number already in use.", dupPhone.Description)

	edit, err := h.engine.EditSubscriber(ctx, first, "renamed@example.com", "0500000001", "changed")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, edit.Code)

	clash, err := h.engine.EditSubscriber(ctx, first, "driver2@example.com", "0500000001", "changed")
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, clash.Code)

	sub, err := h.engine.Authenticate(ctx, "renamed@example.com", "changed")
	require.NoError(t, err)
	assert.Equal(t, first, sub.ID)

	_, err = h.engine.Authenticate(ctx, "renamed@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2, 0)
	sub := h.subscriber(t)

	idle, err := h.engine.Recover(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "No active parking", idle.Args["parking_confirmation_code"])

	res, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	code := mustCode(t, res)

	parked, err := h.engine.Recover(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, parked.Code)
	assert.Equal(t, strconv.Itoa(code), parked.Args["parking_confirmation_code"])
	assert.Equal(t, "driver1@example.com", parked.Args["subscriber_email"])

	events := h.notes.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notification.KindUserRecovery, events[1].Kind)

	missing, err := h.engine.Recover(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, missing.Code)
}

func TestUserHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2, 0)
	sub := h.subscriber(t)

	empty, err := h.engine.UserHistory(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, StatusNoContent, empty.Code)

	res, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, err = h.engine.Pickup(ctx, sub, mustCode(t, res))
	require.NoError(t, err)

	history, err := h.engine.UserHistory(ctx, sub)
	require.NoError(t, err)
	require.Equal(t, StatusOK, history.Code)
	require.Len(t, history.Table, 2)
	assert.Equal(t, "picked_up", history.Table[0]["event_type"])
	assert.Equal(t, "deposited", history.Table[1]["event_type"])
}

func TestCurrentParking(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, 0)
	sub := h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, sub, 0)
	require.NoError(t, err)
	mustCode(t, res)

	table, err := h.engine.CurrentParking(ctx)
	require.NoError(t, err)
	assert.Equal(t, "34", table.Description)
	require.Len(t, table.Table, 3)
	assert.Equal(t, "occupied", table.Table[0]["status"])
	assert.Equal(t, strconv.FormatInt(sub, 10), table.Table[0]["subscriber_id"])
	assert.Equal(t, "available", table.Table[1]["status"])
	assert.Equal(t, "", table.Table[1]["subscriber_id"])
}

func TestBuildReport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, 0)
	active, idle := h.subscriber(t), h.subscriber(t)

	res, err := h.engine.DepositVehicle(ctx, active, 0)
	require.NoError(t, err)
	code := mustCode(t, res)
	_, err = h.engine.Extend(ctx, active, code)
	require.NoError(t, err)
	_, err = h.engine.Pickup(ctx, active, code)
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	res, err = h.engine.DepositVehicle(ctx, active, 0)
	require.NoError(t, err)
	mustCode(t, res)

	users, count, err := h.engine.BuildReport(ctx, model.ReportUsers, 2026, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.Len(t, users, 2)
	assert.Equal(t, strconv.FormatInt(active, 10), users[0]["user"])
	assert.Equal(t, "2", users[0]["deposited"])
	assert.Equal(t, "1", users[0]["picked_up"])
	assert.Equal(t, "1", users[0]["extended"])
	assert.Equal(t, strconv.FormatInt(idle, 10), users[1]["user"])
	assert.Equal(t, "0", users[1]["deposited"])

	parking, _, err := h.engine.BuildReport(ctx, model.ReportParking, 2026, 10)
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"day": "2026-10-18", "capacity": "1"},
		{"day": "2026-10-19", "capacity": "1"},
	}, parking)

	missing, err := h.engine.Report(ctx, model.ReportUsers, 2026, 10)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, missing.Code)
}
