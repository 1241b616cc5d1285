package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"sandboxd/internal/credentials"
	"sandboxd/internal/db/repository"
	"sandboxd/internal/domain"
)

// demoAPIKey is the development API key seeded alongside the demo event. It
// authenticates as an admin actor, so the demo can be driven with curl.
const demoAPIKey = "dev-admin-key"

// seedDemo creates a demo event with one module and three participants, plus
// an admin API key. Idempotent: an already-present demo event means the seed
// ran before and nothing is touched.
func seedDemo(
	ctx context.Context,
	registry *repository.RegistryRepo,
	accounts *repository.AccountRepo,
	apiKeys *repository.APIKeyRepo,
	gen *credentials.Generator,
	logger *slog.Logger,
) error {
	if err := registry.EnsureRole(ctx, domain.RoleParticipant); err != nil {
		return fmt.Errorf("ensure participant role: %w", err)
	}
	if err := registry.EnsureRole(ctx, domain.RoleOrganizer); err != nil {
		return fmt.Errorf("ensure organizer role: %w", err)
	}

	event, err := registry.CreateEvent(ctx, "demo-olympiad")
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return nil // already seeded
		}
		return fmt.Errorf("create demo event: %w", err)
	}

	if _, err := registry.CreateModule(ctx, event.ID, "demo-module"); err != nil {
		return fmt.Errorf("create demo module: %w", err)
	}

	people := []struct{ surname, given string }{
		{"Ivanov", "Petr"},
		{"Schneider", "Anna"},
		{"Okafor", "Chidi"},
	}
	for _, p := range people {
		person, err := registry.CreatePerson(ctx, p.surname, p.given, "")
		if err != nil {
			return fmt.Errorf("create person %s: %w", p.surname, err)
		}
		login, err := gen.GenerateLogin(ctx, domain.Person{Surname: p.surname, GivenName: p.given}, "d1")
		if err != nil {
			return fmt.Errorf("generate login for %s: %w", p.surname, err)
		}
		password, err := gen.GeneratePassword()
		if err != nil {
			return fmt.Errorf("generate password for %s: %w", p.surname, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", p.surname, err)
		}
		_, err = accounts.Create(ctx, &domain.Account{
			PersonID:     person.ID,
			EventID:      &event.ID,
			RoleName:     domain.RoleParticipant,
			Login:        login,
			PasswordHash: string(hash),
		}, password)
		if err != nil {
			return fmt.Errorf("create account %s: %w", login, err)
		}
	}

	keyHash := sha256.Sum256([]byte(demoAPIKey))
	if err := apiKeys.CreateKey(ctx, hex.EncodeToString(keyHash[:]), "demo-admin", true); err != nil {
		return fmt.Errorf("create demo api key: %w", err)
	}

	logger.Info("demo data seeded", "event", event.Name, "participants", len(people))
	return nil
}
