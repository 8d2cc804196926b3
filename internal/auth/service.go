package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/store"
)

const tokenTTL = 24 * time.Hour

type Service interface {
	// Register signs up a pending vendor and opens its zero-balance wallet.
	Register(ctx context.Context, email, password, name string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	// Identify validates a bearer token and reloads the account so the
	// returned status is current.
	Identify(ctx context.Context, token string) (Identity, error)
	Account(ctx context.Context, id uuid.UUID) (*models.Account, error)
	EnsureAdmin(ctx context.Context, email, password string) error
}

type Config struct {
	Secret   []byte
	Currency string
}

type service struct {
	store    store.Store
	secret   []byte
	currency string
	log      *slog.Logger
	now      func() time.Time
}

func NewService(st store.Store, cfg Config, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &service{store: st, secret: cfg.Secret, currency: cfg.Currency, log: log, now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) Register(ctx context.Context, email, password, name string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	acc := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Role:         models.RoleVendor,
		Status:       models.AccountStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return err
		}
		return tx.InsertWallet(ctx, &models.Wallet{
			ID:        uuid.New(),
			VendorID:  acc.ID,
			Balance:   money.Zero,
			Currency:  s.currency,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", email, err)
	}
	s.log.Info("vendor registered", "vendor_id", acc.ID, "email", email)
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	var acc *models.Account
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		acc, err = tx.GetAccountByEmail(ctx, strings.TrimSpace(email))
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return "", models.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}
	return s.issueToken(acc.ID, acc.Role)
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) Identify(ctx context.Context, token string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", models.ErrUnauthorized)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", models.ErrUnauthorized)
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("token subject: %w", models.ErrUnauthorized)
	}
	acc, err := s.Account(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return Identity{}, fmt.Errorf("account %s gone: %w", id, models.ErrUnauthorized)
	}
	if err != nil {
		return Identity{}, err
	}
	return IdentityOf(acc), nil
}

func (s *service) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acc *models.Account
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		acc, err = tx.GetAccount(ctx, id)
		return err
	})
	return acc, err
}

// EnsureAdmin creates an active admin account for email unless one exists.
func (s *service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	created := false
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccountByEmail(ctx, email); err == nil {
			return nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		created = true
		return tx.InsertAccount(ctx, &models.Account{
			ID:           uuid.New(),
			Email:        email,
			Name:         "Administrator",
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
			Status:       models.AccountStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		return fmt.Errorf("ensure admin %s: %w", email, err)
	}
	if created {
		s.log.Info("admin account created", "email", email)
	}
	return nil
}
