package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/repo"
)

// ---------- test helpers ----------

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection serializes transactions the way the production pool does.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// ticker is a monotonically advancing test clock.
type ticker struct {
	mu  sync.Mutex
	cur time.Time
}

func newTicker() *ticker {
	return &ticker{cur: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (k *ticker) Now() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cur = k.cur.Add(time.Millisecond)
	return k.cur
}

func (k *ticker) Advance(d time.Duration) {
	k.mu.Lock()
	k.cur = k.cur.Add(d)
	k.mu.Unlock()
}

// recorder captures published envelopes per user.
type recorder struct {
	mu  sync.Mutex
	got map[string][]realtime.Envelope
}

func newRecorder() *recorder { return &recorder{got: map[string][]realtime.Envelope{}} }

func (r *recorder) Publish(_ context.Context, userID string, env realtime.Envelope) error {
	r.mu.Lock()
	r.got[userID] = append(r.got[userID], env)
	r.mu.Unlock()
	return nil
}

func (r *recorder) For(userID string) []realtime.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Envelope(nil), r.got[userID]...)
}

func (r *recorder) Count(userID, typ string) int {
	n := 0
	for _, e := range r.For(userID) {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type stack struct {
	*Services
	DB    *gorm.DB
	Pub   *recorder
	Clock *ticker
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := newServiceDB(t)
	pub := newRecorder()
	clk := newTicker()
	svcs := New(db, Options{
		Publisher:  pub,
		ListingTTL: 30 * 24 * time.Hour,
		OpTimeout:  5 * time.Second,
		Now:        clk.Now,
	})
	return &stack{Services: svcs, DB: db, Pub: pub, Clock: clk}
}

func (st *stack) listing(t *testing.T, owner, title string) *domain.Listing {
	t.Helper()
	l, err := st.Listings.Create(context.Background(), owner, NewListing{Title: title, Intent: domain.IntentGive})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func (st *stack) propose(t *testing.T, listingID, proposer, counterparty string) *AgreementView {
	t.Helper()
	v, err := st.Agreements.Propose(context.Background(), listingID, proposer, counterparty)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return v
}

func (st *stack) listingStatus(t *testing.T, id string) string {
	t.Helper()
	l, err := repo.GetListing(context.Background(), st.DB, id)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	return l.Status
}

func (st *stack) countRows(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := st.DB.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (st *stack) notificationsOf(t *testing.T, userID, typ string) int64 {
	t.Helper()
	return st.countRows(t, &domain.Notification{}, "recipient_id = ? AND type = ?", userID, typ)
}
