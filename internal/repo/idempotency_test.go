package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

func TestGetIdempotency_NoDocumentID_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	rec, err := GetIdempotency(context.Background(), db, "c1", "   ", "k1", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for empty document id, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:         "expired",
		ClientID:   "c1",
		DocumentID: "d1",
		Key:        "k1",
		ExchangeID: "e1",
		Status:     200,
		CreatedAt:  now.Add(-2 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	rec, err := GetIdempotency(context.Background(), db, "c1", "d1", "k1", now)
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	rec, err = GetIdempotency(context.Background(), db, "c1", "d1", "missing", now)
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec, err)
	}
}

func TestCreateIdempotency_ThenGet_ThenDuplicate(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "c1", "d1", "k1", "h1", "e1", 200, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ExpiresAt.Sub(rec.CreatedAt) != time.Hour {
		t.Fatalf("unexpected ttl window: %v -> %v", rec.CreatedAt, rec.ExpiresAt)
	}

	got, err := GetIdempotency(ctx, db, "c1", "d1", "k1", time.Now().UTC())
	if err != nil || got.ExchangeID != "e1" || got.Status != 200 || got.RequestHash != "h1" {
		t.Fatalf("GetIdempotency: got=%+v err=%v", got, err)
	}

	if _, err := CreateIdempotency(ctx, db, "c1", "d1", "k1", "h2", "e2", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key under another client is independent.
	if _, err := CreateIdempotency(ctx, db, "c2", "d1", "k1", "h1", "e3", 200, time.Hour); err != nil {
		t.Fatalf("other client: %v", err)
	}
}

func TestCreateIdempotency_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, err := CreateIdempotency(context.Background(), db, "c1", "d1", "k1", "h1", "e1", 200, time.Hour)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected non-duplicate error, got %v", err)
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []domain.Idempotency{
		{ID: "old", ClientID: "c", DocumentID: "d", Key: "k1", ExchangeID: "e", Status: 200, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{ID: "new", ClientID: "c", DocumentID: "d", Key: "k2", ExchangeID: "e", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpiredIdempotency: n=%d err=%v", n, err)
	}
	var left int64
	db.Model(&domain.Idempotency{}).Count(&left)
	if left != 1 {
		t.Fatalf("expected 1 remaining, got %d", left)
	}
}
