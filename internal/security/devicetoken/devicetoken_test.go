package devicetoken_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dropDatabas3/mailotp/internal/jwt"
	"github.com/dropDatabas3/mailotp/internal/security/devicetoken"
	"github.com/dropDatabas3/mailotp/internal/store/memory"
)

func newSigner(t *testing.T) (*devicetoken.Signer, *jwt.Keystore) {
	t.Helper()
	ks := jwt.NewKeystore(memory.NewKeyStore())
	if err := ks.EnsureBootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return devicetoken.NewSigner(ks), ks
}

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signer, _ := newSigner(t)

	signed := signer.Sign(ctx, "raw-token-1234")
	if signed == "" {
		t.Fatal("sign returned empty")
	}
	if !strings.Contains(signed, devicetoken.Separator) {
		t.Fatalf("wire form %q missing separator", signed)
	}
	if got := signer.Verify(ctx, signed); got != "raw-token-1234" {
		t.Fatalf("verify = %q, want raw-token-1234", got)
	}
}

func TestVerifySurvivesRotation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signer, ks := newSigner(t)

	signed := signer.Sign(ctx, "cookie-before-rotation")
	if _, err := ks.Rotate(ctx); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// La clave anterior quedó retiring: la cookie vieja sigue verificando
	if got := signer.Verify(ctx, signed); got != "cookie-before-rotation" {
		t.Fatalf("verify after rotation = %q, want raw token", got)
	}

	// Y la clave nueva firma cookies que también verifican
	signed2 := signer.Sign(ctx, "cookie-after-rotation")
	if got := signer.Verify(ctx, signed2); got != "cookie-after-rotation" {
		t.Fatalf("verify new cookie = %q", got)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signer, _ := newSigner(t)

	signed := signer.Sign(ctx, "raw-token-1234")
	idx := strings.LastIndex(signed, devicetoken.Separator)
	tampered := "other-token" + signed[idx:]
	if got := signer.Verify(ctx, tampered); got != "" {
		t.Fatalf("tampered token verified as %q", got)
	}
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signer, _ := newSigner(t)

	cases := []string{
		"",
		"no-separator",
		".sig-sin-token",
		"token.!!!not-base64!!!",
		"token.",
	}
	for _, c := range cases {
		if got := signer.Verify(ctx, c); got != "" {
			t.Fatalf("Verify(%q) = %q, want empty", c, got)
		}
	}
}

func TestSignWithoutActiveKeyDegrades(t *testing.T) {
	t.Parallel()

	// Keystore vacío: sin clave activa, Sign degrada a "" en vez de fallar
	ks := jwt.NewKeystore(memory.NewKeyStore())
	signer := devicetoken.NewSigner(ks)
	if got := signer.Sign(context.Background(), "raw"); got != "" {
		t.Fatalf("sign without key = %q, want empty", got)
	}
}
