package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 2 * time.Second
)

var (
	errNotALetter       = errors.New("message is not a known dead letter format")
	errLetterNoPayload  = errors.New("outbox dead letter does not contain original event payload")
	errReplayerNotReady = errors.New("kafka client and consumer are required")
	errNoReplayProducer = errors.New("producer is required in execute mode")
)

// ReplayConfig описывает один проход по DLQ. Без Execute кандидаты только логируются.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

func (c ReplayConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.SourceTopic) == "" {
		problems = append(problems, "source topic is required")
	}
	if strings.TrimSpace(c.TargetTopic) == "" {
		problems = append(problems, "target topic is required")
	}
	if c.Limit <= 0 {
		problems = append(problems, "limit must be > 0")
	}
	if c.IdleTimeout <= 0 {
		problems = append(problems, "idle timeout must be > 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid replay config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ReplayStats — итог прохода. Processed = Replayed + Skipped.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

// OffsetClient — часть sarama.Client, нужная для определения границ партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

// PartitionConsumer — часть sarama.PartitionConsumer.
type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionConsumerSource открывает чтение партиции с заданного offset.
type PartitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
	Close() error
}

// saramaPartitions приводит sarama.Consumer к PartitionConsumerSource.
type saramaPartitions struct{ sarama.Consumer }

func (s saramaPartitions) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	return s.Consumer.ConsumePartition(topic, partition, offset)
}

// Replayer возвращает письма из DLQ в рабочий топик. Понимает записи consumer'а
// (ConsumerDeadLetter) и конверты relay с domain.OutboxDeadLetter внутри.
type Replayer struct {
	client   OffsetClient
	source   PartitionConsumerSource
	producer *Producer
	logger   *log.Entry
	now      func() time.Time
}

// NewReplayer собирает replayer; producer нужен только в режиме Execute.
func NewReplayer(client OffsetClient, source PartitionConsumerSource, producer *Producer) *Replayer {
	return &Replayer{
		client:   client,
		source:   source,
		producer: producer,
		logger:   log.WithField("component", "dlq-replay"),
		now:      time.Now,
	}
}

// DialReplayer подключается к брокерам; producer открывается только для execute.
func DialReplayer(brokers []string, execute bool) (*Replayer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID + "-replay"
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open kafka consumer: %w", err)
	}

	var producer *Producer
	if execute {
		if producer, err = NewProducer(brokers); err != nil {
			_ = consumer.Close()
			_ = client.Close()
			return nil, err
		}
	}
	return NewReplayer(client, saramaPartitions{consumer}, producer), nil
}

func (r *Replayer) Close() error {
	var errs []error
	if r.producer != nil {
		errs = append(errs, r.producer.Close())
	}
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	if r.client != nil {
		errs = append(errs, r.client.Close())
	}
	return errors.Join(errs...)
}

// window — полуинтервал offset'ов партиции [from, until), зафиксированный на старте прохода.
type window struct {
	partition int32
	from      int64
	until     int64
}

// Run проходит по партициям DLQ по возрастанию номеров, пока не наберёт cfg.Limit писем.
func (r *Replayer) Run(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var stats ReplayStats
	if err := cfg.Validate(); err != nil {
		return stats, err
	}
	if r.client == nil || r.source == nil {
		return stats, errReplayerNotReady
	}
	if cfg.Execute && r.producer == nil {
		return stats, errNoReplayProducer
	}

	logger := r.logger.WithFields(log.Fields{
		"source_topic": cfg.SourceTopic,
		"target_topic": cfg.TargetTopic,
		"execute":      cfg.Execute,
	})
	logger.WithField("limit", cfg.Limit).Info("dlq replay started")

	partitions, err := r.client.Partitions(cfg.SourceTopic)
	if err != nil {
		return stats, fmt.Errorf("list partitions of %s: %w", cfg.SourceTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := cfg.Limit - stats.Processed
		if budget <= 0 {
			break
		}
		w, err := r.windowOf(cfg, partition, budget)
		if err != nil {
			return stats, err
		}
		if w.from >= w.until {
			continue
		}
		if err := r.drain(ctx, cfg, w, budget, &stats); err != nil {
			return stats, err
		}
	}

	logger.WithFields(log.Fields{
		"processed": stats.Processed,
		"replayed":  stats.Replayed,
		"skipped":   stats.Skipped,
	}).Info("dlq replay finished")
	return stats, nil
}

func (r *Replayer) windowOf(cfg ReplayConfig, partition int32, budget int) (window, error) {
	oldest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return window{}, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return window{}, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	w := window{partition: partition, from: oldest, until: newest}
	if cfg.FromNewest {
		w.from = max(newest-int64(budget), oldest)
	}
	return w, nil
}

// drain читает окно партиции; останавливается на его конце, по бюджету или после паузы cfg.IdleTimeout.
func (r *Replayer) drain(ctx context.Context, cfg ReplayConfig, w window, budget int, stats *ReplayStats) error {
	pc, err := r.source.ConsumePartition(cfg.SourceTopic, w.partition, w.from)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", w.partition, err)
	}
	defer func() { _ = pc.Close() }()

	for taken := 0; taken < budget; {
		idle := time.NewTimer(cfg.IdleTimeout)
		var msg *sarama.ConsumerMessage
		select {
		case <-ctx.Done():
			idle.Stop()
			return ctx.Err()
		case <-idle.C:
			return nil
		case cerr, open := <-pc.Errors():
			idle.Stop()
			if !open {
				return nil
			}
			if cerr != nil {
				return fmt.Errorf("partition %d: %w", w.partition, cerr)
			}
			continue
		case msg = <-pc.Messages():
			idle.Stop()
		}
		if msg == nil || msg.Offset >= w.until {
			return nil
		}

		taken++
		stats.Processed++
		if err := r.replay(ctx, cfg, msg); err != nil {
			if !errors.Is(err, errNotALetter) && !errors.Is(err, errLetterNoPayload) {
				return err
			}
			stats.Skipped++
			r.logger.WithError(err).WithFields(log.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("dlq message skipped")
		} else {
			stats.Replayed++
		}
		if msg.Offset+1 >= w.until {
			return nil
		}
	}
	return nil
}

func (r *Replayer) replay(ctx context.Context, cfg ReplayConfig, msg *sarama.ConsumerMessage) error {
	rec, err := r.decodeLetter(msg, cfg.TargetTopic)
	if err != nil {
		return err
	}
	if !cfg.Execute {
		r.logger.WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"target":    rec.Topic,
			"key":       rec.Key,
		}).Info("dlq replay candidate")
		return nil
	}
	if err := r.producer.Send(ctx, rec); err != nil {
		return fmt.Errorf("republish dlq offset %d: %w", msg.Offset, err)
	}
	return nil
}

// decodeLetter пробует форматы по очереди; первый узнавший письмо строит запись для отправки.
func (r *Replayer) decodeLetter(msg *sarama.ConsumerMessage, fallbackTopic string) (Record, error) {
	for _, decode := range []func(*sarama.ConsumerMessage, string) (Record, bool, error){
		r.fromConsumerLetter,
		r.fromOutboxLetter,
	} {
		rec, ok, err := decode(msg, fallbackTopic)
		if ok || err != nil {
			return rec, err
		}
	}
	return Record{}, errNotALetter
}

func (r *Replayer) fromConsumerLetter(msg *sarama.ConsumerMessage, fallbackTopic string) (Record, bool, error) {
	var letter ConsumerDeadLetter
	if json.Unmarshal(msg.Value, &letter) != nil || letter.OriginalValue == "" {
		return Record{}, false, nil
	}
	rec := Record{
		Topic: firstNonEmpty(letter.OriginalTopic, fallbackTopic),
		Key:   letter.OriginalKey,
		Value: []byte(letter.OriginalValue),
	}
	if eventType := headerValue(msg, HeaderEventType); eventType != "" {
		rec.Headers = map[string]string{HeaderEventType: eventType}
	}
	return rec, true, nil
}

func (r *Replayer) fromOutboxLetter(msg *sarama.ConsumerMessage, fallbackTopic string) (Record, bool, error) {
	envelope, err := ParseEnvelope(msg)
	if err != nil {
		return Record{}, false, nil
	}
	var dead domain.OutboxDeadLetter
	if json.Unmarshal(envelope.Payload, &dead) != nil || (dead.OutboxID == "" && dead.EventType == "") {
		return Record{}, false, nil
	}
	if len(dead.Payload) == 0 || string(dead.Payload) == "null" {
		return Record{}, true, errLetterNoPayload
	}

	original := dead.OriginalMessage()
	original.ID = firstNonEmpty(original.ID, envelope.ID)
	original.AggregateType = firstNonEmpty(original.AggregateType, envelope.AggregateType)
	original.AggregateID = firstNonEmpty(original.AggregateID, envelope.AggregateID)
	original.EventType = firstNonEmpty(original.EventType, envelope.EventType)

	fresh := NewEnvelope(original, r.now())
	value, err := jsonMarshal(fresh)
	if err != nil {
		return Record{}, true, err
	}
	return Record{
		Topic:   fallbackTopic,
		Key:     fresh.Key(),
		Value:   value,
		Headers: map[string]string{HeaderEventType: original.EventType},
	}, true, nil
}

// ParseBrokers разбирает списки брокеров через запятую, пустые элементы отбрасываются.
func ParseBrokers(values ...string) []string {
	brokers := make([]string, 0, len(values))
	for _, value := range values {
		for _, broker := range strings.Split(value, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}
	return brokers
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
