package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/mailotp/internal/cache"
	"github.com/dropDatabas3/mailotp/internal/session"
)

func TestCreateGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewStore(cache.NewMemory("test"), time.Minute)

	st, err := store.Create(ctx, "acme", "u-1", session.ModeRequired)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.ID == "" {
		t.Fatal("attempt token empty")
	}
	if st.TenantID != "acme" || st.PrincipalID != "u-1" || st.Mode != session.ModeRequired {
		t.Fatalf("state fields wrong: %+v", st)
	}

	got, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != st.ID || got.TenantID != st.TenantID {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	if err := store.Delete(ctx, st.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, st.ID); !cache.IsNotFound(err) {
		t.Fatalf("get after delete: err=%v, want not found", err)
	}
}

func TestSavePersistsOTPState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewStore(cache.NewMemory("test"), time.Minute)

	st, err := store.Create(ctx, "acme", "u-1", session.ModeAlternative)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	st.OTPCode = "ABC234"
	st.OTPCreatedAt = time.Now().Unix()
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OTPCode != "ABC234" || got.OTPCreatedAt == 0 {
		t.Fatalf("otp state lost: %+v", got)
	}
	if got.Mode != session.ModeAlternative {
		t.Fatalf("mode lost: %+v", got)
	}
}

func TestConcurrentAttemptsAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewStore(cache.NewMemory("test"), time.Minute)

	// Dos logins simultáneos del mismo principal: códigos independientes
	st1, _ := store.Create(ctx, "acme", "u-1", session.ModeRequired)
	st2, _ := store.Create(ctx, "acme", "u-1", session.ModeRequired)
	if st1.ID == st2.ID {
		t.Fatal("attempt tokens collide")
	}

	st1.OTPCode = "AAAAAA"
	st2.OTPCode = "BBBBBB"
	_ = store.Save(ctx, st1)
	_ = store.Save(ctx, st2)

	got1, _ := store.Get(ctx, st1.ID)
	got2, _ := store.Get(ctx, st2.ID)
	if got1.OTPCode != "AAAAAA" || got2.OTPCode != "BBBBBB" {
		t.Fatalf("states crossed: %q / %q", got1.OTPCode, got2.OTPCode)
	}
}
