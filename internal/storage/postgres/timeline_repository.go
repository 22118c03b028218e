package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// Порядок событий с одинаковым occurred задаёт BIGSERIAL id, то есть порядок вставки.
var timelineColumns = []string{"order_id", "type", "reason", "occurred"}

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт журнал событий заказа в таблице timeline_events.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	_, err := execBuilt(ctx, r.db, "append timeline event", psql.Insert("timeline_events").
		Columns(timelineColumns...).
		Values(event.OrderID, event.Type, event.Reason, occurred))
	return err
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(timelineColumns...).
		From("timeline_events").
		Where("order_id = ?", orderID).
		OrderBy("occurred", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build timeline query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select timeline of %s: %w", orderID, err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.OrderID, &e.Type, &e.Reason, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		e.Occurred = e.Occurred.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of %s: %w", orderID, err)
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
