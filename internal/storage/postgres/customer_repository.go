package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const customerColumns = `id, email, name, phone, password_hash, role, addresses, cart, preferences, version, created_at, updated_at`

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{db: store.DB()}
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	addresses, cart, prefs, err := encodeCustomerDocs(customer)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		customer.ID, domain.NormalizeEmail(customer.Email), customer.Name, customer.Phone,
		customer.PasswordHash, string(customer.Role), addresses, cart, prefs,
		customer.Version, customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "customers_email_key" {
				return domain.ErrEmailTaken
			}
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	return r.getBy(ctx, "id", id)
}

func (r *customerRepository) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return r.getBy(ctx, "email", domain.NormalizeEmail(email))
}

func (r *customerRepository) getBy(ctx context.Context, column, value string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+column+` = $1`, value)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return customer, nil
}

// Save обновляет документ клиента целиком; email не меняется.
func (r *customerRepository) Save(ctx context.Context, customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	addresses, cart, prefs, err := encodeCustomerDocs(customer)
	if err != nil {
		return err
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $1,
		    phone = $2,
		    password_hash = $3,
		    role = $4,
		    addresses = $5,
		    cart = $6,
		    preferences = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		customer.Name, customer.Phone, customer.PasswordHash, string(customer.Role),
		addresses, cart, prefs, customer.UpdatedAt, customer.ID, customer.Version,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := r.db.QueryRowContext(ctx, `SELECT id FROM customers WHERE id = $1`, customer.ID).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.ErrCustomerNotFound
		case err != nil:
			return fmt.Errorf("check customer exists: %w", err)
		default:
			return domain.ErrVersionConflict
		}
	}
	return nil
}

func encodeCustomerDocs(customer domain.Customer) (addresses, cart, prefs string, err error) {
	if customer.Addresses == nil {
		customer.Addresses = []domain.Address{}
	}
	if customer.Cart == nil {
		customer.Cart = []domain.CartItem{}
	}
	if addresses, err = toJSONB(customer.Addresses); err != nil {
		return "", "", "", err
	}
	if cart, err = toJSONB(customer.Cart); err != nil {
		return "", "", "", err
	}
	if prefs, err = toJSONB(customer.Preferences); err != nil {
		return "", "", "", err
	}
	return addresses, cart, prefs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var (
		c                      domain.Customer
		role                   string
		addresses, cart, prefs []byte
	)
	if err := row.Scan(
		&c.ID, &c.Email, &c.Name, &c.Phone, &c.PasswordHash, &role,
		&addresses, &cart, &prefs, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return domain.Customer{}, err
	}
	c.Role = domain.Role(role)
	if err := fromJSONB(addresses, &c.Addresses); err != nil {
		return domain.Customer{}, err
	}
	if err := fromJSONB(cart, &c.Cart); err != nil {
		return domain.Customer{}, err
	}
	if err := fromJSONB(prefs, &c.Preferences); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
