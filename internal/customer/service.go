package customer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/logging"
)

// WalletInitializer provisions the zero wallet of a new customer.
type WalletInitializer interface {
	Initialize(ctx context.Context, customerID string) error
}

// Service manages customer registration and lookup.
type Service struct {
	repo    Repository
	wallets WalletInitializer
	logger  *slog.Logger
}

// NewService creates a new customer service.
func NewService(repo Repository, wallets WalletInitializer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, wallets: wallets, logger: logger}
}

// CleanPhone strips everything but digits.
func CleanPhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r <= unicode.MaxASCII {
			return r
		}
		return -1
	}, phone)
}

// Lookup finds a customer by phone number.
func (s *Service) Lookup(ctx context.Context, phone string) (Customer, error) {
	cleaned := CleanPhone(phone)
	if cleaned == "" {
		return Customer{}, ErrNotFound
	}
	return s.repo.FindByPhone(ctx, cleaned)
}

// LookupID resolves a phone number to a customer id.
func (s *Service) LookupID(ctx context.Context, phone string) (string, bool, error) {
	c, err := s.Lookup(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return c.ID, true, nil
}

// Exists reports whether a customer id is registered.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// Create registers a customer and provisions an empty wallet.
func (s *Service) Create(ctx context.Context, in CreateInput) (Customer, error) {
	phone := CleanPhone(in.Phone)
	name := strings.TrimSpace(in.Name)
	address := strings.TrimSpace(in.Address)
	if phone == "" || name == "" || (address == "" && !in.hasLocation()) {
		return Customer{}, ErrInvalidInput
	}

	first, last, _ := strings.Cut(name, " ")
	c := Customer{
		ID:        uuid.New().String(),
		Phone:     phone,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}
	if in.hasLocation() {
		c.Address = "Location from Map"
		c.Latitude = strings.TrimSpace(in.Latitude)
		c.Longitude = strings.TrimSpace(in.Longitude)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return Customer{}, err
	}

	if s.wallets != nil {
		// The wallet reads as zero until it exists, so a failure here is not fatal.
		if err := s.wallets.Initialize(ctx, c.ID); err != nil {
			s.logger.Warn("wallet initialization failed", slog.String("customer_id", c.ID), slog.Any("error", err))
		}
	}

	s.logger.Info("customer created", slog.String("customer_id", c.ID), slog.String("phone", c.Phone))
	return c, nil
}
