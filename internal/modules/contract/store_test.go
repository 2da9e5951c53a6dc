// README: Database-backed contract tests (run with -race against PostGIS).
package contract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"bagdrop/internal/infra"
	"bagdrop/internal/logger"
	"bagdrop/internal/modules/vicinity"
	"bagdrop/internal/types"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, vicinity.NewGate(enabledGate()), Deps{}, logger.NewNop(), nil)

	pickup, drop := naia, dropOff
	c, err := svc.Create(ctx, CreateCommand{
		Actor:               airline,
		OwnerFirstName:      "Maria",
		OwnerLastName:       "Santos",
		FlightNumber:        "5J 560",
		LuggageQuantity:     2,
		LuggageDescriptions: []string{"black suitcase", "blue duffel"},
		PickupLocation:      "NAIA Terminal 3",
		PickupGeo:           &pickup,
		DropOffLocation:     "Quezon City",
		DropOffGeo:          &drop,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending || got.StatusVersion != 0 {
		t.Fatalf("unexpected status %s v%d", got.Status, got.StatusVersion)
	}
	if got.PickupGeo == nil || !near(*got.PickupGeo, naia) {
		t.Fatalf("pickup geometry lost: %+v", got.PickupGeo)
	}
	if got.CurrentGeo != nil {
		t.Fatalf("current geometry should be empty, got %+v", got.CurrentGeo)
	}
	if len(got.LuggageDescriptions) != 2 {
		t.Fatalf("descriptions lost: %v", got.LuggageDescriptions)
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_TransitionAndLocation(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, vicinity.NewGate(enabledGate()), Deps{Uploader: &fakeUploader{}}, logger.NewNop(), nil)

	c := mustCreate(t, svc)
	if _, err := svc.Accept(ctx, ActionCommand{ContractID: c.ID, Actor: courier}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Pickup(ctx, ActionCommand{ContractID: c.ID, Actor: courier, Position: &naia, Proofs: proofs(ProofPickup)}); err != nil {
		t.Fatalf("pickup: %v", err)
	}

	n, err := svc.CountInTransit(ctx, courier.ID)
	if err != nil || n != 1 {
		t.Fatalf("count in transit = %d, %v", n, err)
	}
	ids, err := svc.UpdateCurrentLocation(ctx, courier.ID, "EDSA", dropOff)
	if err != nil || len(ids) != 1 {
		t.Fatalf("update location = %v, %v", ids, err)
	}

	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusInTransit || got.PickupAt == nil || got.AcceptedAt == nil {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.CurrentLocation != "EDSA" || got.CurrentGeo == nil || !near(*got.CurrentGeo, dropOff) {
		t.Fatalf("current location not written: %q %+v", got.CurrentLocation, got.CurrentGeo)
	}
	if got.Proofs[ProofPickup] == "" {
		t.Fatalf("pickup proof not stored")
	}

	events, err := store.ListEvents(ctx, c.ID)
	if err != nil || len(events) != 3 {
		t.Fatalf("events = %d, %v", len(events), err)
	}
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	ctx := context.Background()
	svc := NewService(setupTestStore(t), vicinity.NewGate(enabledGate()), Deps{}, logger.NewNop(), nil)
	c := mustCreate(t, svc)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Accept(ctx, ActionCommand{ContractID: c.ID, Actor: courier})
		errs <- err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Cancel(ctx, ActionCommand{ContractID: c.ID, Actor: airline, Remarks: "passenger collected bags"})
		errs <- err
	}()

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) && !errors.Is(err, ErrForbidden) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success < 1 || success > 2 {
		t.Fatalf("expected 1 or 2 successes, got %d", success)
	}

	got, err := svc.Get(ctx, Actor{Role: types.RoleAdmin}, c.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if success == 2 && got.Status != StatusCancelled {
		t.Fatalf("expected cancelled after accept+cancel, got %s", got.Status)
	}
	if success == 1 && got.Status != StatusAwaitingPickup && got.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
}

func TestConcurrentAcceptSameContract(t *testing.T) {
	ctx := context.Background()
	svc := NewService(setupTestStore(t), vicinity.NewGate(enabledGate()), Deps{}, logger.NewNop(), nil)
	c := mustCreate(t, svc)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		actor := Actor{ID: types.ID(fmt.Sprintf("d%d", i)), Role: types.RoleDelivery}
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			_, err := svc.Accept(ctx, ActionCommand{ContractID: c.ID, Actor: a})
			errs <- err
		}(actor)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	got, err := svc.Get(ctx, Actor{Role: types.RoleAdmin}, c.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if got.Status != StatusAwaitingPickup {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
	if got.DeliveryID == nil || *got.DeliveryID == "" {
		t.Fatalf("expected delivery_id to be set")
	}
}

func mustCreate(t *testing.T, svc *Service) *Contract {
	t.Helper()
	pickup, drop := naia, dropOff
	c, err := svc.Create(context.Background(), CreateCommand{
		Actor:           airline,
		OwnerFirstName:  "Jose",
		OwnerLastName:   "Rizal",
		FlightNumber:    "PR 300",
		LuggageQuantity: 1,
		PickupGeo:       &pickup,
		DropOffLocation: "Quezon City",
		DropOffGeo:      &drop,
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

func near(a, b types.Point) bool {
	const eps = 1e-6
	return abs(a.Lat-b.Lat) < eps && abs(a.Lng-b.Lng) < eps
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("BAGDROP_TEST_DSN")
	if dsn == "" {
		t.Skip("BAGDROP_TEST_DSN not set; skipping DB-backed contract tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := infra.FindMigrations()
	if err != nil {
		t.Fatalf("locate migrations: %v", err)
	}
	if _, err := infra.ApplyMigrations(ctx, db, dir); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE contract_status_events, contracts"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewStore(db)
}
