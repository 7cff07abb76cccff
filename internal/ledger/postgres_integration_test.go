//go:build integration

package ledger

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/contract"
	"github.com/congo-pay/giftcard/internal/money"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/ledger/
const testDatabaseURLEnv = "TEST_DATABASE_URL"

var pgNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseURLEnv)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/0001_gift_cards.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE card_consumptions, card_contracts, gift_cards`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresStore(pool)
}

func pgCard(id, owner, balance string, status card.Status, exp *time.Time) card.Card {
	c := card.Card{
		ID:         id,
		OwnerID:    owner,
		ParValue:   money.MustParse("100.00"),
		Status:     status,
		ExpireTime: exp,
		CodeHash:   []byte("hash-" + id),
		CreatedAt:  pgNow,
		UpdatedAt:  pgNow,
	}
	c.SetBalance(money.MustParse(balance))
	return c
}

func pgAt(hours int) *time.Time {
	ts := pgNow.Add(time.Duration(hours) * time.Hour)
	return &ts
}

func insertCards(t *testing.T, store *PostgresStore, cards ...card.Card) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		for _, c := range cards {
			if err := tx.CreateCard(context.Background(), c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert cards: %v", err)
	}
}

func TestPostgresSpendableOrderAndBalance(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()

	insertCards(t, store,
		pgCard("00000000-0000-0000-0000-000000000004", "alice", "10.00", card.StatusValid, pgAt(24)),
		pgCard("00000000-0000-0000-0000-000000000003", "alice", "12.34", card.StatusValid, nil),
		pgCard("00000000-0000-0000-0000-000000000002", "alice", "5.01", card.StatusValid, pgAt(48)),
		pgCard("00000000-0000-0000-0000-000000000001", "alice", "7.50", card.StatusValid, pgAt(24)),
		pgCard("00000000-0000-0000-0000-000000000005", "alice", "9.00", card.StatusExpired, pgAt(-1)),
		pgCard("00000000-0000-0000-0000-000000000006", "alice", "0.00", card.StatusValid, pgAt(1)),
		pgCard("00000000-0000-0000-0000-000000000007", "bob", "3.00", card.StatusValid, pgAt(1)),
	)

	spendable, err := store.ListSpendableCards(ctx, "alice")
	if err != nil {
		t.Fatalf("list spendable: %v", err)
	}
	want := []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000004",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000003",
	}
	if len(spendable) != len(want) {
		t.Fatalf("expected %d spendable cards, got %d", len(want), len(spendable))
	}
	for i, id := range want {
		if spendable[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, spendable[i].ID)
		}
	}
	if last := spendable[3]; last.ExpireTime != nil || !last.Available().Equal(money.MustParse("12.34")) {
		t.Fatalf("unexpected never-expiring card: %+v", last)
	}

	total, err := store.SumSpendableBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !total.Equal(money.MustParse("34.85")) {
		t.Fatalf("expected 34.85, got %s", total.StringFixed(2))
	}

	if _, err := store.GetCard(ctx, "not-a-uuid"); !errors.Is(err, card.ErrNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}
}

func TestPostgresUpdateCardChecksVersion(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()
	id := "00000000-0000-0000-0000-0000000000a1"
	insertCards(t, store, pgCard(id, "alice", "20.00", card.StatusValid, nil))

	loaded, err := store.GetCard(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	err = store.WithinTx(ctx, func(tx Tx) error {
		next := loaded
		next.SetBalance(money.MustParse("15.55"))
		return tx.UpdateCard(ctx, next)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = store.WithinTx(ctx, func(tx Tx) error {
		return tx.UpdateCard(ctx, loaded)
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict for stale write, got %v", err)
	}

	err = store.WithinTx(ctx, func(tx Tx) error {
		missing := loaded
		missing.ID = "00000000-0000-0000-0000-0000000000ff"
		return tx.UpdateCard(ctx, missing)
	})
	if !errors.Is(err, card.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	current, err := store.GetCard(ctx, id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if current.Version != loaded.Version+1 || !current.Available().Equal(money.MustParse("15.55")) {
		t.Fatalf("unexpected card after update: %+v", current)
	}
}

func TestPostgresContractRoundTrip(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()
	cardA := "00000000-0000-0000-0000-0000000000b1"
	cardB := "00000000-0000-0000-0000-0000000000b2"
	insertCards(t, store,
		pgCard(cardA, "alice", "0.00", card.StatusValid, pgAt(24)),
		pgCard(cardB, "alice", "40.00", card.StatusValid, nil),
	)

	k := contract.Contract{
		ID:         "00000000-0000-0000-0000-0000000000c1",
		Code:       "ORD1",
		OwnerID:    "alice",
		CostAmount: money.MustParse("60.00"),
		CreatedAt:  pgNow,
	}
	lines := []contract.Consumption{
		{ID: "00000000-0000-0000-0000-0000000000d9", CardID: cardA, ContractID: k.ID, Title: "order ORD1", OrderID: "ORD1",
			Amount: money.MustParse("-50.00"), RefundableAmount: money.MustParse("50.00"), CreatedAt: pgNow, CreatedBy: "till-4"},
		{ID: "00000000-0000-0000-0000-0000000000d1", CardID: cardB, ContractID: k.ID, Title: "order ORD1", OrderID: "ORD1",
			Amount: money.MustParse("-10.00"), RefundableAmount: money.MustParse("10.00"), CreatedAt: pgNow},
	}
	err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateContract(ctx, k); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.CreateConsumption(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	refundedAt := pgNow.Add(time.Hour)
	err = store.WithinTx(ctx, func(tx Tx) error {
		locked, err := tx.GetContract(ctx, k.ID)
		if err != nil {
			return err
		}
		first := locked.Consumptions[0]
		first.RefundableAmount = money.MustParse("33.33")
		if err := tx.UpdateConsumption(ctx, first); err != nil {
			return err
		}
		locked.RefundTime = &refundedAt
		return tx.UpdateContract(ctx, locked)
	})
	if err != nil {
		t.Fatalf("refund update: %v", err)
	}

	stored, err := store.GetContract(ctx, k.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if len(stored.Consumptions) != 2 || stored.Consumptions[0].ID != lines[0].ID {
		t.Fatalf("consumptions out of insertion order: %+v", stored.Consumptions)
	}
	if !stored.Consumptions[0].RefundableAmount.Equal(money.MustParse("33.33")) || stored.Consumptions[0].CreatedBy != "till-4" {
		t.Fatalf("unexpected first line: %+v", stored.Consumptions[0])
	}
	if !stored.CostAmount.Equal(money.MustParse("60.00")) {
		t.Fatalf("unexpected cost amount %s", stored.CostAmount)
	}
	if stored.RefundTime == nil || !stored.RefundTime.Equal(refundedAt) {
		t.Fatalf("unexpected refund time %v", stored.RefundTime)
	}

	history, err := store.ListConsumptionsByCard(ctx, cardB)
	if err != nil {
		t.Fatalf("card history: %v", err)
	}
	if len(history) != 1 || !history[0].Amount.Equal(money.MustParse("-10.00")) {
		t.Fatalf("unexpected card history: %+v", history)
	}

	err = store.WithinTx(ctx, func(tx Tx) error {
		return tx.UpdateContract(ctx, contract.Contract{ID: "00000000-0000-0000-0000-0000000000cf"})
	})
	if !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected contract not found, got %v", err)
	}
}

func TestPostgresSweeper(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()
	insertCards(t, store,
		pgCard("00000000-0000-0000-0000-0000000000e1", "alice", "5.00", card.StatusValid, pgAt(-2)),
		pgCard("00000000-0000-0000-0000-0000000000e2", "alice", "5.00", card.StatusValid, pgAt(-1)),
		pgCard("00000000-0000-0000-0000-0000000000e3", "alice", "0.00", card.StatusValid, pgAt(5)),
		pgCard("00000000-0000-0000-0000-0000000000e4", "alice", "5.00", card.StatusValid, pgAt(5)),
	)

	expired, err := store.ExpireDue(ctx, pgNow, 1)
	if err != nil || expired != 1 {
		t.Fatalf("first expire batch: %d %v", expired, err)
	}
	expired, err = store.ExpireDue(ctx, pgNow, 10)
	if err != nil || expired != 1 {
		t.Fatalf("second expire batch: %d %v", expired, err)
	}
	emptied, err := store.MarkEmpty(ctx, pgNow, 10)
	if err != nil || emptied != 1 {
		t.Fatalf("mark empty: %d %v", emptied, err)
	}

	got, err := store.GetCard(ctx, "00000000-0000-0000-0000-0000000000e3")
	if err != nil || got.Status != card.StatusEmpty || got.Version != 1 {
		t.Fatalf("unexpected emptied card: %+v %v", got, err)
	}
	if c, _ := store.GetCard(ctx, "00000000-0000-0000-0000-0000000000e4"); c.Status != card.StatusValid {
		t.Fatalf("live card was swept: %+v", c)
	}
}
