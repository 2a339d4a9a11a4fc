package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdmin creates the first Admin account on first boot if no primary
// accounts exist. The generated password is logged once and must be
// changed. Returns the generated password, or "" if seeding was skipped.
func SeedAdmin(ctx context.Context, repo PrimaryRepository, email string, logger *slog.Logger) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		logger.Info("no seed admin email configured, skipping admin seed")
		return "", nil
	}
	if !IsValidEmail(email) {
		return "", fmt.Errorf("seed admin: %w: %q", ErrInvalidEmail, email)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking primary account count: %w", err)
	}
	if count > 0 {
		logger.Info("primary accounts exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &PrimaryAccount{
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
	}
	if err := repo.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"email", email,
		"password", password,
		"action_required", "change this password immediately",
	)
	return password, nil
}
