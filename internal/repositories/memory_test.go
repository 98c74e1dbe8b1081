package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/babynest/backend/internal/models"
)

func TestInMemoryUserStoreRejectsDuplicateEmail(t *testing.T) {
	store := NewInMemoryUserStore()
	ctx := context.Background()

	if err := store.Create(ctx, &models.User{Email: "a@example.com"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := store.Create(ctx, &models.User{Email: "a@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	var dup *DuplicateError
	if !errors.As(err, &dup) || dup.Field != "email" {
		t.Fatalf("expected duplicate on email, got %v", err)
	}
}

func TestInMemoryUserStoreResetFlow(t *testing.T) {
	store := NewInMemoryUserStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	user := &models.User{Email: "a@example.com", Password: "old"}
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SetResetOTP(ctx, user.ID.Hex(), "h1", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("set otp: %v", err)
	}

	if ok, _ := store.ResetPassword(ctx, "a@example.com", "new", now); ok {
		t.Fatal("reset must not succeed before verification")
	}
	if ok, _ := store.ConsumeResetOTP(ctx, "a@example.com", "wrong", now); ok {
		t.Fatal("wrong hash must not verify")
	}
	if ok, _ := store.ConsumeResetOTP(ctx, "a@example.com", "h1", now.Add(10*time.Minute)); !ok {
		t.Fatal("expected verification exactly at expiry to succeed")
	}
	if ok, _ := store.ConsumeResetOTP(ctx, "a@example.com", "h1", now); ok {
		t.Fatal("a consumed OTP must not verify twice")
	}
	if ok, _ := store.ResetPassword(ctx, "a@example.com", "new", now); !ok {
		t.Fatal("expected reset after verification")
	}

	got, err := store.FindByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Password != "new" || got.OTPVerified || got.ResetOTPExpiry != nil {
		t.Fatalf("reset state not cleared: %+v", got)
	}
}

func TestInMemoryUserStoreOTPAttemptLimit(t *testing.T) {
	store := NewInMemoryUserStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	user := &models.User{Email: "a@example.com"}
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := store.ReserveOTPAttempt(ctx, "a@example.com", 2); ok {
		t.Fatal("reserved an attempt with no pending code")
	}
	if err := store.SetResetOTP(ctx, user.ID.Hex(), "h1", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("set otp: %v", err)
	}
	for i := 0; i < 2; i++ {
		if ok, _ := store.ReserveOTPAttempt(ctx, "a@example.com", 2); !ok {
			t.Fatalf("attempt %d refused", i+1)
		}
	}
	if ok, _ := store.ReserveOTPAttempt(ctx, "a@example.com", 2); ok {
		t.Fatal("third attempt allowed")
	}
	if ok, _ := store.ConsumeResetOTP(ctx, "a@example.com", "h1", now); ok {
		t.Fatal("code still usable after lockout")
	}

	if err := store.SetResetOTP(ctx, user.ID.Hex(), "h2", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("set otp: %v", err)
	}
	if ok, _ := store.ReserveOTPAttempt(ctx, "a@example.com", 2); !ok {
		t.Fatal("fresh code refused")
	}
}

func TestInMemoryUserStoreOnboardingMergesSymptoms(t *testing.T) {
	store := NewInMemoryUserStore()
	ctx := context.Background()
	user := &models.User{Email: "a@example.com", Symptoms: map[string]int{"nausea": 2}}
	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.UpdateOnboarding(ctx, user.ID.Hex(), OnboardingUpdate{Symptoms: map[string]int{"fatigue": 3}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Symptoms["nausea"] != 2 || got.Symptoms["fatigue"] != 3 {
		t.Fatalf("expected merged symptoms, got %v", got.Symptoms)
	}
}

func TestInMemoryJournalStoreScopesToOwner(t *testing.T) {
	store := NewInMemoryJournalStore()
	ctx := context.Background()
	entry := &models.JournalEntry{UserID: "owner", Date: "2026-01-01", CreatedAt: time.Now()}
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.FindOwned(ctx, entry.ID.Hex(), "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a foreign read, got %v", err)
	}
	if err := store.DeleteOwned(ctx, entry.ID.Hex(), "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a foreign delete, got %v", err)
	}
	if err := store.DeleteOwned(ctx, "not-hex", "owner"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := store.DeleteOwned(ctx, entry.ID.Hex(), "owner"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := store.DeleteOwned(ctx, entry.ID.Hex(), "owner"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestInMemoryJournalStoreListPagination(t *testing.T) {
	store := NewInMemoryJournalStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = store.Create(ctx, &models.JournalEntry{UserID: "u", Notes: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	_ = store.Create(ctx, &models.JournalEntry{UserID: "other", CreatedAt: base})

	page, total, err := store.ListByUser(ctx, "u", 2, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(page) != 2 || page[0].Notes != "d" || page[1].Notes != "c" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestInMemoryMessageStoreHistoryOrder(t *testing.T) {
	store := NewInMemoryMessageStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = store.Insert(ctx, &models.Message{Room: "alice_bob", Sender: "bob", Message: "second", Timestamp: base.Add(time.Second)})
	_ = store.Insert(ctx, &models.Message{Room: "alice_bob", Sender: "alice", Message: "first", Timestamp: base})
	_ = store.Insert(ctx, &models.Message{Room: "alice_carol", Sender: "alice", Message: "elsewhere", Timestamp: base})

	history, err := store.History(ctx, "alice_bob")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Message != "first" || history[1].Message != "second" {
		t.Fatalf("unexpected history %+v", history)
	}

	rooms, _ := store.RoomsBySender(ctx, "alice")
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms for alice, got %v", rooms)
	}
}

func TestTranslateWriteErrorPassesThrough(t *testing.T) {
	plain := errors.New("boom")
	if got := translateWriteError(plain); got != plain {
		t.Fatalf("expected non-duplicate error unchanged, got %v", got)
	}
	if translateWriteError(nil) != nil {
		t.Fatal("expected nil for nil")
	}
}
