package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

var (
	orderColumns = []string{
		"id", "customer_id", "status", "currency", "subtotal_minor", "delivery_fee_minor", "total_minor",
		"delivery_address", "payment_method", "payment_status", "payment_url", "transaction_id", "note",
		"version", "created_at", "updated_at",
	}
	orderItemColumns = []string{
		"id", "product_id", "product_name", "image_url", "size",
		"options", "quantity", "unit_price_minor", "line_total_minor", "note",
	}
)

// Позиции заказа неизменны после оформления и лежат в order_items в порядке корзины.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create пишет заказ и все его позиции одной транзакцией.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	address, err := toJSONB(order.DeliveryAddress)
	if err != nil {
		return err
	}
	items, err := insertItems(order)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order %s: %w", order.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	head := psql.Insert("orders").Columns(orderColumns...).Values(
		order.ID, order.CustomerID, string(order.Status), order.Currency,
		order.SubtotalMinor, order.DeliveryFeeMinor, order.TotalMinor, address,
		string(order.PaymentMethod), string(order.PaymentStatus), order.PaymentURL,
		order.TransactionID, order.Note, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if _, err = execBuilt(ctx, tx, "insert order", head); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	if items != nil {
		if _, err = execBuilt(ctx, tx, "insert order items", items); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order %s: %w", order.ID, err)
	}
	return nil
}

// insertItems собирает один многострочный INSERT; nil, если позиций нет.
func insertItems(order domain.Order) (sq.Sqlizer, error) {
	if len(order.Items) == 0 {
		return nil, nil
	}
	columns := append([]string{"order_id", "position"}, orderItemColumns...)
	insert := psql.Insert("order_items").Columns(columns...)
	for pos, item := range order.Items {
		options, err := toJSONB(item.Options)
		if err != nil {
			return nil, err
		}
		insert = insert.Values(
			order.ID, pos, item.ID, item.ProductID, item.ProductName, item.ImageURL, item.Size,
			options, item.Quantity, item.UnitPriceMinor, item.LineTotalMinor, item.Note,
		)
	}
	return insert, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	orders, err := r.selectOrders(ctx, psql.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

// ListByCustomer отдаёт историю заказов, новые первыми.
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"customer_id": customerID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return r.selectOrders(ctx, query)
}

// Save обновляет изменяемые поля заказа при совпадении версии.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := psql.Update("orders").
		SetMap(map[string]any{
			"status":         string(order.Status),
			"payment_status": string(order.PaymentStatus),
			"payment_url":    order.PaymentURL,
			"transaction_id": order.TransactionID,
			"note":           order.Note,
			"updated_at":     order.UpdatedAt,
			"version":        sq.Expr("version + 1"),
		}).
		Where(sq.Eq{"id": order.ID, "version": order.Version})

	affected, err := execBuilt(ctx, r.db, "update order", update)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	exists, err := r.exists(ctx, order.ID)
	switch {
	case err != nil:
		return err
	case !exists:
		return domain.ErrOrderNotFound
	default:
		return domain.ErrVersionConflict
	}
}

// selectOrders читает заголовки заказов и подтягивает позиции всех найденных заказов одним запросом.
func (r *orderRepository) selectOrders(ctx context.Context, query sq.SelectBuilder) ([]domain.Order, error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return orders, nil
	}
	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}
	return orders, nil
}

func (r *orderRepository) itemsOf(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query, args, err := psql.Select(append([]string{"order_id"}, orderItemColumns...)...).
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("order_id", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
			options []byte
		)
		if err := rows.Scan(
			&orderID, &item.ID, &item.ProductID, &item.ProductName, &item.ImageURL, &item.Size,
			&options, &item.Quantity, &item.UnitPriceMinor, &item.LineTotalMinor, &item.Note,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if err := fromJSONB(options, &item.Options); err != nil {
			return nil, err
		}
		byOrder[orderID] = append(byOrder[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return byOrder, nil
}

func (r *orderRepository) exists(ctx context.Context, orderID string) (bool, error) {
	query, args, err := psql.Select("1").From("orders").Where(sq.Eq{"id": orderID}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build order lookup: %w", err)
	}
	var one int
	switch err := r.db.QueryRowContext(ctx, query, args...).Scan(&one); {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("look up order %s: %w", orderID, err)
	}
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                                   domain.Order
		status, paymentMethod, paymentState string
		address                             []byte
	)
	if err := row.Scan(
		&o.ID, &o.CustomerID, &status, &o.Currency, &o.SubtotalMinor, &o.DeliveryFeeMinor, &o.TotalMinor,
		&address, &paymentMethod, &paymentState, &o.PaymentURL, &o.TransactionID, &o.Note,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.PaymentStatus = domain.PaymentStatus(paymentState)
	if err := fromJSONB(address, &o.DeliveryAddress); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
