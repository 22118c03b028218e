package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// timelineDoc — событие ленты; ObjectID выдаётся клиентом и упорядочивает события с одинаковым occurred.
type timelineDoc struct {
	ID                   primitive.ObjectID `bson:"_id"`
	domain.TimelineEvent `bson:",inline"`
}

type timelineRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{coll: store.collection(CollectionTimeline), now: time.Now}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}
	event.Occurred = event.Occurred.UTC()

	doc := timelineDoc{ID: primitive.NewObjectID(), TimelineEvent: event}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append %s to timeline of %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// List отдаёт ленту заказа в хронологическом порядке.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "occurred", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.D{{Key: "order_id", Value: orderID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find timeline of %s: %w", orderID, err)
	}
	defer cursor.Close(ctx)

	events := []domain.TimelineEvent{}
	for cursor.Next(ctx) {
		var doc timelineDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode timeline event: %w", err)
		}
		doc.Occurred = doc.Occurred.UTC()
		events = append(events, doc.TimelineEvent)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of %s: %w", orderID, err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
