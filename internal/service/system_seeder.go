package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
	"ledger-service/internal/usecase"

	"golang.org/x/crypto/bcrypt"
)

// SystemSeeder handles initial setup: the built-in super_admin user the
// demo bank ships with. Idempotent; safe to run on every start.
type SystemSeeder struct {
	accountUC *usecase.AccountUsecase
	userRepo  repository.UserRepository
}

func NewSystemSeeder(accountUC *usecase.AccountUsecase, userRepo repository.UserRepository) *SystemSeeder {
	return &SystemSeeder{accountUC: accountUC, userRepo: userRepo}
}

const (
	seedAdminEmail    = "admin@demobank.com"
	seedAdminPassword = "admin123" // demo credential, rotate outside demos
)

// SeedSystem creates the super_admin user if it does not exist yet.
func (s *SystemSeeder) SeedSystem(ctx context.Context) error {
	_, err := s.userRepo.GetByEmail(ctx, seedAdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to look up seed admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed admin password: %w", err)
	}

	admin := &domain.User{
		Email:        seedAdminEmail,
		PasswordHash: string(hash),
		FirstName:    "Bank",
		LastName:     "Administrator",
		Phone:        "555-0001",
		Address:      "123 Bank Street, Financial District",
		DateOfBirth:  "1980-01-01",
		Role:         domain.RoleSuperAdmin,
	}
	if _, err := s.accountUC.RegisterUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	log.Printf("Created admin user: %s", seedAdminEmail)
	return nil
}
