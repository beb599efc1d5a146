package otp_test

import (
	"testing"
	"time"

	"github.com/dropDatabas3/mailotp/internal/otp"
	"github.com/dropDatabas3/mailotp/internal/session"
)

func newManager(now *time.Time) *otp.Manager {
	m := otp.NewManager(otp.DefaultAlphabet, otp.DefaultLength, 600*time.Second)
	m.Now = func() time.Time { return *now }
	return m
}

func TestIssueReusesPendingCode(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	code1, fresh, err := m.Issue(st, false)
	if err != nil || !fresh {
		t.Fatalf("first issue: code=%q fresh=%v err=%v", code1, fresh, err)
	}

	// Re-display del challenge: mismo código, sin reenvío
	code2, fresh, err := m.Issue(st, false)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if fresh {
		t.Fatal("re-display regenerated the code")
	}
	if code2 != code1 {
		t.Fatalf("code changed on re-display: %q -> %q", code1, code2)
	}
}

func TestIssueForceRegenerates(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	m.Issue(st, false)
	code2, fresh, err := m.Issue(st, true)
	if err != nil {
		t.Fatalf("forced issue: %v", err)
	}
	if !fresh {
		t.Fatal("forced issue not fresh")
	}
	// El anterior queda invalidado: solo uno pendiente
	if st.OTPCode != code2 {
		t.Fatalf("pending code = %q, want %q", st.OTPCode, code2)
	}
}

func TestIssueRegeneratesWhenExpired(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	code1, _, _ := m.Issue(st, false)
	now = now.Add(601 * time.Second)

	code2, fresh, err := m.Issue(st, false)
	if err != nil {
		t.Fatalf("issue after expiry: %v", err)
	}
	if !fresh {
		t.Fatal("expired code was reused")
	}
	_ = code1
	if st.OTPCode != code2 {
		t.Fatalf("pending code = %q, want %q", st.OTPCode, code2)
	}
}

func TestVerifyValidConsumesCode(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	code, _, _ := m.Issue(st, false)
	if got := m.Verify(st, code); got != otp.Valid {
		t.Fatalf("verify = %v, want Valid", got)
	}
	if st.OTPCode != "" || st.OTPCreatedAt != 0 {
		t.Fatal("code not consumed after Valid")
	}
	// Replay del mismo código: ya no hay challenge pendiente
	if got := m.Verify(st, code); got != otp.Invalid {
		t.Fatalf("replay verify = %v, want Invalid", got)
	}
}

func TestVerifyMismatch(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	m.Issue(st, false)
	if got := m.Verify(st, "WRONG1"); got != otp.Invalid {
		t.Fatalf("verify = %v, want Invalid", got)
	}
	// El código pendiente sigue vivo: error recuperable
	if st.OTPCode == "" {
		t.Fatal("pending code cleared on mismatch")
	}
}

func TestVerifyEmptySubmission(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	m.Issue(st, false)
	if got := m.Verify(st, ""); got != otp.Invalid {
		t.Fatalf("verify(\"\") = %v, want Invalid", got)
	}
}

func TestVerifyNoChallenge(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	if got := m.Verify(st, "ABC234"); got != otp.Invalid {
		t.Fatalf("verify without challenge = %v, want Invalid", got)
	}
}

func TestVerifyExpiredBoundary(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := newManager(&now)
	st := &session.State{}

	code, _, _ := m.Issue(st, false)

	// Exactamente en el límite: now - lifetime == createdAt todavía vale
	now = now.Add(600 * time.Second)
	if got := m.Verify(st, code); got != otp.Valid {
		t.Fatalf("verify at boundary = %v, want Valid", got)
	}

	st = &session.State{}
	now = time.Unix(1_700_000_000, 0)
	code, _, _ = m.Issue(st, false)

	// Un segundo pasado el límite: vencido, el código queda para regenerar
	now = now.Add(601 * time.Second)
	if got := m.Verify(st, code); got != otp.Expired {
		t.Fatalf("verify past boundary = %v, want Expired", got)
	}
	if st.OTPCode == "" {
		t.Fatal("expired code cleared; caller needs it until regeneration")
	}
}
