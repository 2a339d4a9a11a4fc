package auth

import (
	"testing"
	"time"
)

// ─── Password hashing (Argon2id, intentionally slow) ────────────────

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashPassword("correct-horse-battery-staple") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyPassword("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ─── Session tokens (per-request hot path) ──────────────────────────

func BenchmarkIssue(b *testing.B) {
	svc, err := NewTokenService(testSecret, 7*24*time.Hour)
	if err != nil {
		b.Fatalf("NewTokenService: %v", err)
	}
	sub := Subject{ID: "pri-bench", Role: RoleAdmin, Kind: KindPrimary}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.Issue(sub) //nolint:errcheck // benchmark
	}
}

func BenchmarkVerify(b *testing.B) {
	svc, err := NewTokenService(testSecret, 7*24*time.Hour)
	if err != nil {
		b.Fatalf("NewTokenService: %v", err)
	}
	issued, err := svc.Issue(Subject{ID: "pri-bench", Role: RoleAdmin, Kind: KindPrimary})
	if err != nil {
		b.Fatalf("Issue: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.Verify(issued.Token) //nolint:errcheck // benchmark
	}
}

func BenchmarkCanAccess(b *testing.B) {
	pa := DefaultPageAccess()
	for i := 0; i < b.N; i++ {
		pa.CanAccess(RoleStaff, PageTenants)
	}
}
