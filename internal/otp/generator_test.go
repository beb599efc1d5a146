package otp_test

import (
	"strings"
	"testing"

	"github.com/dropDatabas3/mailotp/internal/otp"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		code, err := otp.Generate(otp.DefaultAlphabet, otp.DefaultLength)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != otp.DefaultLength {
			t.Fatalf("len = %d, want %d (code %q)", len(code), otp.DefaultLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(otp.DefaultAlphabet, c) {
				t.Fatalf("code %q contains %q outside alphabet", code, c)
			}
		}
	}
}

func TestGenerateCustomAlphabet(t *testing.T) {
	t.Parallel()

	code, err := otp.Generate("AB", 10)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 10 {
		t.Fatalf("len = %d, want 10", len(code))
	}
	for _, c := range code {
		if c != 'A' && c != 'B' {
			t.Fatalf("unexpected char %q", c)
		}
	}
}

func TestGenerateVaries(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := otp.Generate(otp.DefaultAlphabet, otp.DefaultLength)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		seen[code] = true
	}
	// 20 códigos de 6 chars sobre 32 símbolos: una colisión total sería
	// señal de un generador roto.
	if len(seen) < 2 {
		t.Fatalf("all %d generated codes identical", len(seen))
	}
}
