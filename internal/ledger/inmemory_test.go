package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/contract"
)

func seed(s Store, id, owner string, status card.Status, balance string, exp *time.Time) {
	c := card.Card{ID: id, OwnerID: owner, ParValue: decimal.RequireFromString("100.00"), Status: status, ExpireTime: exp}
	c.SetBalance(decimal.RequireFromString(balance))
	SeedCard(s, c)
}

func TestInMemory_SpendableFilterAndOrder(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	soon := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	later := soon.Add(72 * time.Hour)

	seed(s, "c3", "alice", card.StatusValid, "10.00", &later)
	seed(s, "c2", "alice", card.StatusValid, "5.00", &soon)
	seed(s, "c1", "alice", card.StatusValid, "7.00", &later)
	seed(s, "c4", "alice", card.StatusExpired, "50.00", &soon)
	seed(s, "c5", "alice", card.StatusValid, "0.00", &soon)
	seed(s, "c6", "bob", card.StatusValid, "99.00", &soon)
	seed(s, "c7", "alice", card.StatusInit, "20.00", nil)

	cards, err := s.ListSpendableCards(ctx, "alice")
	if err != nil {
		t.Fatalf("list spendable: %v", err)
	}
	var ids []string
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	want := []string{"c2", "c1", "c3"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}

	total, err := s.SumSpendableBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("22.00")) {
		t.Fatalf("expected 22.00, got %s", total)
	}
}

func TestInMemory_WithinTxRollsBackOnError(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	seed(s, "c1", "alice", card.StatusValid, "10.00", nil)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Tx) error {
		c, err := tx.GetCard(ctx, "c1")
		if err != nil {
			return err
		}
		c.SetBalance(decimal.Zero)
		if err := tx.UpdateCard(ctx, c); err != nil {
			return err
		}
		if err := tx.CreateContract(ctx, contract.Contract{ID: "k1", Code: "ORD1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	c, _ := s.GetCard(ctx, "c1")
	if !c.Available().Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("balance changed despite rollback: %s", c.Available())
	}
	if _, err := s.GetContract(ctx, "k1"); !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("contract survived rollback: %v", err)
	}
}

func TestInMemory_UpdateCardVersionConflict(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	seed(s, "c1", "alice", card.StatusValid, "10.00", nil)

	stale, _ := s.GetCard(ctx, "c1")

	if err := s.WithinTx(ctx, func(tx Tx) error {
		fresh := stale
		fresh.SetBalance(decimal.RequireFromString("4.00"))
		return tx.UpdateCard(ctx, fresh)
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	err := s.WithinTx(ctx, func(tx Tx) error {
		stale.SetBalance(decimal.RequireFromString("1.00"))
		return tx.UpdateCard(ctx, stale)
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	c, _ := s.GetCard(ctx, "c1")
	if !c.Available().Equal(decimal.RequireFromString("4.00")) || c.Version != 1 {
		t.Fatalf("unexpected card state: balance=%s version=%d", c.Available(), c.Version)
	}
}

func TestInMemory_ContractKeepsConsumptionOrder(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	seed(s, "c1", "alice", card.StatusValid, "10.00", nil)

	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateContract(ctx, contract.Contract{ID: "k1", Code: "ORD1"}); err != nil {
			return err
		}
		for _, id := range []string{"l3", "l1", "l2"} {
			if err := tx.CreateConsumption(ctx, contract.Consumption{ID: id, CardID: "c1", ContractID: "k1"}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	k, err := s.GetContract(ctx, "k1")
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if len(k.Consumptions) != 3 || k.Consumptions[0].ID != "l3" || k.Consumptions[2].ID != "l2" {
		t.Fatalf("unexpected order: %+v", k.Consumptions)
	}

	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateConsumption(ctx, contract.Consumption{ID: "l4", CardID: "missing", ContractID: "k1"})
	})
	if !errors.Is(err, card.ErrNotFound) {
		t.Fatalf("expected card not found, got %v", err)
	}
}

func TestInMemory_SweepInBatches(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	seed(s, "c1", "alice", card.StatusValid, "10.00", &past)
	seed(s, "c2", "alice", card.StatusValid, "10.00", &now)
	seed(s, "c3", "alice", card.StatusValid, "10.00", &past)
	seed(s, "c4", "alice", card.StatusValid, "10.00", &future)
	seed(s, "c5", "alice", card.StatusValid, "0.00", &future)

	n, err := s.ExpireDue(ctx, now, 2)
	if err != nil || n != 2 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	n, err = s.ExpireDue(ctx, now, 2)
	if err != nil || n != 1 {
		t.Fatalf("second batch: n=%d err=%v", n, err)
	}
	n, err = s.MarkEmpty(ctx, now, 10)
	if err != nil || n != 1 {
		t.Fatalf("mark empty: n=%d err=%v", n, err)
	}

	wantStatus := map[string]card.Status{
		"c1": card.StatusExpired,
		"c2": card.StatusExpired,
		"c3": card.StatusExpired,
		"c4": card.StatusValid,
		"c5": card.StatusEmpty,
	}
	for id, want := range wantStatus {
		c, _ := s.GetCard(ctx, id)
		if c.Status != want {
			t.Fatalf("%s: expected %s, got %s", id, want, c.Status)
		}
	}
}

func TestCardsAdapter(t *testing.T) {
	s := NewInMemory()
	repo := Cards(s)
	ctx := context.Background()

	c := card.Card{ID: "c1", OwnerID: "alice", Status: card.StatusValid}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, c); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
	listed, err := repo.ListByOwner(ctx, "alice")
	if err != nil || len(listed) != 1 {
		t.Fatalf("list: %v %v", listed, err)
	}
	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, card.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemory_ListConsumptionsByCard(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	seed(s, "c1", "alice", card.StatusValid, "10.00", nil)
	seed(s, "c2", "alice", card.StatusValid, "10.00", nil)

	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateContract(ctx, contract.Contract{ID: "k1"}); err != nil {
			return err
		}
		lines := []contract.Consumption{
			{ID: "a", CardID: "c2", ContractID: "k1"},
			{ID: "b", CardID: "c1", ContractID: "k1"},
			{ID: "c", CardID: "c2", ContractID: "k1"},
		}
		for _, line := range lines {
			if err := tx.CreateConsumption(ctx, line); err != nil {
				return err
			}
		}
		inTx, err := tx.ListConsumptionsByCard(ctx, "c2")
		if err != nil {
			return err
		}
		if len(inTx) != 2 {
			t.Errorf("tx view: expected 2 lines, got %d", len(inTx))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	lines, err := s.ListConsumptionsByCard(ctx, "c2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lines) != 2 || lines[0].ID != "a" || lines[1].ID != "c" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if none, _ := s.ListConsumptionsByCard(ctx, "nobody"); len(none) != 0 {
		t.Fatalf("expected no lines, got %d", len(none))
	}
}
