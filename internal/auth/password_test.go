package auth

import "testing"

func TestHashAndComparePassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := ComparePassword("correct horse battery", hash)
	if err != nil || !ok {
		t.Fatalf("ComparePassword(match) = %v, %v", ok, err)
	}
	ok, err = ComparePassword("wrong horse battery", hash)
	if err != nil || ok {
		t.Fatalf("ComparePassword(mismatch) = %v, %v", ok, err)
	}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short"); err == nil {
		t.Fatal("HashPassword(short) err = nil")
	}
	if err := ValidatePassword("ünïcödé-pässwörd"); err != nil {
		t.Fatalf("ValidatePassword(unicode) = %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Ops@Example.COM "); got != "ops@example.com" {
		t.Fatalf("NormalizeEmail = %q, want ops@example.com", got)
	}
}
