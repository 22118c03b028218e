// Package account регистрирует клиентов, выдаёт токены и ведёт профиль.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

const maxAddresses = 5

// RegisterInput — форма регистрации.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Locale   string `json:"locale,omitempty"`
}

// ProfileUpdate — частичное обновление профиля; nil-поля не меняются.
type ProfileUpdate struct {
	Name                 *string               `json:"name,omitempty"`
	Phone                *string               `json:"phone,omitempty"`
	Addresses            *[]domain.Address     `json:"addresses,omitempty"`
	Locale               *string               `json:"locale,omitempty"`
	DefaultPaymentMethod *domain.PaymentMethod `json:"default_payment_method,omitempty"`
	DefaultAddressIndex  *int                  `json:"default_address_index,omitempty"`
}

// Session — клиент вместе с выданным токеном.
type Session struct {
	Customer domain.Customer `json:"customer"`
	Token    Token           `json:"token"`
}

// Service — операции с учётной записью клиента.
type Service struct {
	customers  domain.CustomerRepository
	tokens     *TokenIssuer
	bcryptCost int
	logger     *log.Entry

	// dummyHash сравнивается при неизвестном email, чтобы время ответа не выдавало наличие учётки.
	dummyHash []byte
}

// NewService создаёт сервис учётных записей.
func NewService(customers domain.CustomerRepository, tokens *TokenIssuer, bcryptCost int, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "account")
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), bcryptCost)
	return &Service{
		customers:  customers,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
		dummyHash:  dummy,
	}
}

// Register создаёт покупателя и сразу выдаёт токен.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	return s.register(ctx, in, domain.RoleCustomer)
}

// RegisterStaff создаёт сотрудника (используется CLI).
func (s *Service) RegisterStaff(ctx context.Context, in RegisterInput) (Session, error) {
	return s.register(ctx, in, domain.RoleStaff)
}

func (s *Service) register(ctx context.Context, in RegisterInput, role domain.Role) (Session, error) {
	var v domain.Validator
	domain.ValidateEmail(&v, "email", in.Email)
	domain.ValidatePassword(&v, "password", in.Password)
	domain.ValidateName(&v, "name", in.Name)
	domain.ValidatePhone(&v, "phone", in.Phone)
	locale := validateLocale(&v, "locale", in.Locale)
	if err := v.Err(); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	customer := domain.Customer{
		ID:           uuid.NewString(),
		Email:        domain.NormalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Role:         role,
		Addresses:    []domain.Address{},
		Cart:         []domain.CartItem{},
		Preferences:  domain.Preferences{Locale: locale},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.customers.Create(ctx, customer); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("create customer: %w", err)
	}

	token, err := s.tokens.Issue(customer)
	if err != nil {
		return Session{}, err
	}
	s.logger.WithFields(log.Fields{
		"customer_id": customer.ID,
		"role":        role,
	}).Info("customer registered")
	return Session{Customer: customer, Token: token}, nil
}

// Login проверяет пароль и выдаёт новый токен.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	customer, err := s.customers.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("load customer: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(password)) != nil {
		s.logger.WithField("customer_id", customer.ID).Warn("login failed: wrong password")
		return Session{}, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(customer)
	if err != nil {
		return Session{}, err
	}
	return Session{Customer: customer, Token: token}, nil
}

// Authenticate проверяет access token.
func (s *Service) Authenticate(token string) (Principal, error) {
	return s.tokens.Parse(token)
}

// GetProfile возвращает профиль клиента.
func (s *Service) GetProfile(ctx context.Context, customerID string) (domain.Customer, error) {
	return s.customers.Get(ctx, customerID)
}

// UpdateProfile применяет частичное обновление профиля с optimistic locking.
func (s *Service) UpdateProfile(ctx context.Context, customerID string, update ProfileUpdate) (domain.Customer, error) {
	var result domain.Customer
	err := retry.OnVersionConflict(ctx, func(ctx context.Context) error {
		customer, err := s.customers.Get(ctx, customerID)
		if err != nil {
			return err
		}
		if err := applyProfileUpdate(&customer, update); err != nil {
			return err
		}
		customer.UpdatedAt = time.Now().UTC()
		if err := s.customers.Save(ctx, customer); err != nil {
			return err
		}
		customer.Version++
		result = customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return result, nil
}

func applyProfileUpdate(customer *domain.Customer, update ProfileUpdate) error {
	var v domain.Validator

	if update.Name != nil {
		customer.Name = strings.TrimSpace(*update.Name)
	}
	if update.Phone != nil {
		customer.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.Addresses != nil {
		if len(*update.Addresses) > maxAddresses {
			v.Add("addresses", "at most %d addresses are allowed", maxAddresses)
		}
		customer.Addresses = append([]domain.Address(nil), (*update.Addresses)...)
	}
	if update.Locale != nil {
		customer.Preferences.Locale = validateLocale(&v, "preferences.locale", *update.Locale)
	}
	if update.DefaultPaymentMethod != nil {
		customer.Preferences.DefaultPaymentMethod = *update.DefaultPaymentMethod
	}
	if update.DefaultAddressIndex != nil {
		idx := *update.DefaultAddressIndex
		if idx < 0 || (idx > 0 && idx >= len(customer.Addresses)) {
			v.Add("preferences.default_address_index", "must point to an existing address")
		}
		customer.Preferences.DefaultAddressIndex = idx
	}

	v.Merge("", customer.ValidateProfile())
	return v.Err()
}

// validateLocale приводит тег локали к каноническому виду (BCP 47).
func validateLocale(v *domain.Validator, field, locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		v.Add(field, "must be a valid language tag")
		return ""
	}
	return tag.String()
}
