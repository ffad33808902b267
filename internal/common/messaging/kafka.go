// Package messaging wraps kafka-go with a JSON producer and a manually
// committed consumer loop that retries, backs off and dead-letters.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"portal-service/internal/common/config"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ==========================
// Producer
// ==========================

type Producer struct {
	writer  Writer
	timeout time.Duration
	logger  logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log logger.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           config.GetDuration(cfg.WriteTimeout),
	}
	return NewProducerWithWriter(w, config.GetDuration(cfg.WriteTimeout), log)
}

func NewProducerWithWriter(w Writer, timeout time.Duration, log logger.Logger) *Producer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Producer{
		writer:  w,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"component": "kafka-producer"}),
	}
}

// Publish JSON-encodes value and writes it to topic. The key routes all
// messages of one application to the same partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now().UTC(),
	}); err != nil {
		p.logger.Error("failed to send kafka message", map[string]interface{}{
			"topic": topic,
			"key":   key,
			"error": err.Error(),
		})
		return err
	}

	p.logger.Debug("kafka message sent", map[string]interface{}{"topic": topic, "key": key})
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// ==========================
// Consumer
// ==========================

// Message is the broker-neutral view handed to handlers.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Time      time.Time
}

func (m Message) UnmarshalPayload(dest interface{}) error {
	return json.Unmarshal(m.Value, dest)
}

// HandlerFunc processes one message and says what to do with it.
type HandlerFunc func(ctx context.Context, msg Message) apperrors.Disposition

type ConsumerOptions struct {
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	DeadLetterTopic string
}

// DeadLetter is the record parked on the dead-letter topic.
type DeadLetter struct {
	OriginalTopic     string    `json:"originalTopic"`
	OriginalKey       string    `json:"originalKey"`
	OriginalValue     string    `json:"originalValue"`
	OriginalPartition int       `json:"originalPartition"`
	OriginalOffset    int64     `json:"originalOffset"`
	Attempts          int       `json:"attempts"`
	FailureReason     string    `json:"failureReason"`
	FailedAt          time.Time `json:"failedAt"`
}

type Consumer struct {
	reader  Reader
	dlq     *Producer
	handler HandlerFunc
	opts    ConsumerOptions
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

func NewConsumer(reader Reader, dlq *Producer, handler HandlerFunc, opts ConsumerOptions, log logger.Logger) *Consumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}
	return &Consumer{
		reader:  reader,
		dlq:     dlq,
		handler: handler,
		opts:    opts,
		logger:  log.WithFields(map[string]interface{}{"component": "kafka-consumer"}),
		sleep:   sleepContext,
	}
}

// Run fetches and processes messages one at a time until ctx is cancelled.
// A message is committed once it is acked or dropped, or dead-lettered after
// its retries run out. Deferred messages wait without spending attempts.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", map[string]interface{}{"maxAttempts": c.opts.MaxAttempts})
	fetchFailures := 0

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopped", nil)
				return nil
			}
			fetchFailures++
			c.logger.Error("fetch failed", map[string]interface{}{"error": err.Error(), "failures": fetchFailures})
			if err := c.sleep(ctx, c.backoff(fetchFailures)); err != nil {
				return nil
			}
			continue
		}
		fetchFailures = 0

		if !c.process(ctx, km) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("commit failed", map[string]interface{}{
				"topic":  km.Topic,
				"offset": km.Offset,
				"error":  err.Error(),
			})
		}
	}
}

// process reports false when ctx was cancelled before the message settled.
func (c *Consumer) process(ctx context.Context, km kafka.Message) bool {
	msg := Message{
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Key:       string(km.Key),
		Value:     km.Value,
		Time:      km.Time,
	}

	attempt, deferrals := 1, 0
	for {
		var wait time.Duration
		switch c.handler(ctx, msg) {
		case apperrors.Ack, apperrors.Drop:
			return true
		case apperrors.Defer:
			deferrals++
			wait = c.backoff(deferrals)
			c.logger.Info("deferring message", map[string]interface{}{
				"topic":     msg.Topic,
				"offset":    msg.Offset,
				"deferrals": deferrals,
				"wait":      wait.String(),
			})
		default:
			if attempt >= c.opts.MaxAttempts {
				return c.deadLetter(ctx, msg, attempt)
			}
			wait = c.backoff(attempt)
			c.logger.Warn("retrying message", map[string]interface{}{
				"topic":   msg.Topic,
				"offset":  msg.Offset,
				"attempt": attempt,
				"wait":    wait.String(),
			})
			attempt++
		}
		if err := c.sleep(ctx, wait); err != nil {
			return false
		}
	}
}

// deadLetter keeps trying to park the message; it is never committed unparked.
func (c *Consumer) deadLetter(ctx context.Context, msg Message, attempts int) bool {
	if c.dlq == nil || c.opts.DeadLetterTopic == "" {
		c.logger.Error("retries exhausted, no dead-letter topic configured", map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		})
		return true
	}

	record := DeadLetter{
		OriginalTopic:     msg.Topic,
		OriginalKey:       msg.Key,
		OriginalValue:     string(msg.Value),
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		Attempts:          attempts,
		FailureReason:     "retries exhausted",
		FailedAt:          time.Now().UTC(),
	}
	for try := 1; ; try++ {
		err := c.dlq.Publish(ctx, c.opts.DeadLetterTopic, msg.Key, record)
		if err == nil {
			c.logger.Warn("message dead-lettered", map[string]interface{}{
				"topic":    msg.Topic,
				"offset":   msg.Offset,
				"attempts": attempts,
			})
			return true
		}
		if err := c.sleep(ctx, c.backoff(try)); err != nil {
			return false
		}
	}
}

func (c *Consumer) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.opts.BaseBackoff
	for i := 1; i < attempt && d < c.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > c.opts.MaxBackoff {
		d = c.opts.MaxBackoff
	}
	return d
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
