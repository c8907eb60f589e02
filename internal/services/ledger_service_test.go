package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/repo"
)

func TestLedger_ListForRolesAndHasTransaction(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	first := st.listing(t, "x", "Books")
	second := st.listing(t, "x", "Shelf")
	for _, l := range []*domain.Listing{first, second} {
		v := st.propose(t, l.ID, "x", "y")
		if _, err := st.Agreements.Resolve(ctx, v.Agreement.ID, "y", OutcomeAccept); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}

	given, total, err := st.Ledger.ListFor(ctx, "x", repo.RoleGiven, 1, 10)
	if err != nil || total != 2 {
		t.Fatalf("given: total=%d err=%v", total, err)
	}
	if given[0].Listing.ID != second.ID || given[0].Transaction.FromParty != "x" || given[0].Transaction.ToParty != "y" {
		t.Fatalf("newest given entry = %+v", given[0])
	}
	if _, total, _ = st.Ledger.ListFor(ctx, "x", repo.RoleReceived, 1, 10); total != 0 {
		t.Fatalf("x received = %d", total)
	}
	if _, total, _ = st.Ledger.ListFor(ctx, "y", repo.RoleReceived, 1, 10); total != 2 {
		t.Fatalf("y received = %d", total)
	}
	if _, _, err := st.Ledger.ListFor(ctx, "x", "both", 1, 10); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("want ErrInvalidRole, got %v", err)
	}

	if ok, err := st.Ledger.HasTransaction(ctx, first.ID); err != nil || !ok {
		t.Fatalf("HasTransaction(first) = %v %v", ok, err)
	}
	fresh := st.listing(t, "x", "Fresh")
	if ok, _ := st.Ledger.HasTransaction(ctx, fresh.ID); ok {
		t.Fatalf("untraded listing reported as traded")
	}
}

func TestLedger_SecondCompletionRejected(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	l := st.listing(t, "x", "Desk")
	v := st.propose(t, l.ID, "x", "y")
	if _, err := st.Agreements.Resolve(ctx, v.Agreement.ID, "y", OutcomeAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}

	a := v.Agreement
	if _, err := st.Ledger.recordCompletion(ctx, st.DB, &a); !errors.Is(err, ErrListingNotActive) {
		t.Fatalf("want ErrListingNotActive, got %v", err)
	}
	if n := st.countRows(t, &domain.Transaction{}, "listing_id = ?", l.ID); n != 1 {
		t.Fatalf("transactions = %d", n)
	}
}
