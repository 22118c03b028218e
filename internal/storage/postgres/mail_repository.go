package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const mailColumns = `id, order_id, customer_id, sender, recipients, subject, text_body, html_body, locale, created_at`

type mailRepository struct {
	db *sql.DB
}

// NewMailRepository создаёт PostgreSQL-реализацию коллекции mail.
func NewMailRepository(store *Store) domain.MailRepository {
	return &mailRepository{db: store.DB()}
}

func (r *mailRepository) Create(ctx context.Context, mail domain.Mail) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	recipients, err := toJSONB(mail.To)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO mails (`+mailColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		mail.ID, mail.OrderID, mail.CustomerID, mail.From, recipients,
		mail.Subject, mail.Text, mail.HTML, mail.Locale, mail.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrMailAlreadyExists
		}
		return fmt.Errorf("insert mail: %w", err)
	}
	return nil
}

func (r *mailRepository) Get(ctx context.Context, id string) (domain.Mail, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	mail, err := scanMail(r.db.QueryRowContext(ctx, `SELECT `+mailColumns+` FROM mails WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Mail{}, domain.ErrMailNotFound
		}
		return domain.Mail{}, fmt.Errorf("select mail: %w", err)
	}
	return mail, nil
}

func (r *mailRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Mail, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+mailColumns+` FROM mails WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list mails: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Mail, 0)
	for rows.Next() {
		mail, err := scanMail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mail: %w", err)
		}
		result = append(result, mail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mails: %w", err)
	}
	return result, nil
}

func scanMail(row rowScanner) (domain.Mail, error) {
	var (
		m          domain.Mail
		recipients []byte
	)
	if err := row.Scan(
		&m.ID, &m.OrderID, &m.CustomerID, &m.From, &recipients,
		&m.Subject, &m.Text, &m.HTML, &m.Locale, &m.CreatedAt,
	); err != nil {
		return domain.Mail{}, err
	}
	if err := fromJSONB(recipients, &m.To); err != nil {
		return domain.Mail{}, err
	}
	return m, nil
}

var _ domain.MailRepository = (*mailRepository)(nil)
