package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/metrics"
	"github.com/stats-tracker/internal/service"
)

const (
	defaultHandlerTimeout = 10 * time.Second
	defaultStartTimeout   = 30 * time.Second

	// retryBackoff is the pause before rejoining the group after Consume fails
	retryBackoff = 2 * time.Second
)

// Ingester persists one stats snapshot
type Ingester interface {
	Ingest(ctx context.Context, payload domain.StatsPayload) (*domain.IngestResult, error)
}

// Consumer consumes stats payloads from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	ingester      Ingester
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan struct{}
	readyOnce     sync.Once
	retryBackoff  time.Duration
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, ingester Ingester, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return newConsumer(cfg, consumerGroup, ingester, logger), nil
}

func newConsumer(cfg *config.KafkaConfig, group sarama.ConsumerGroup, ingester Ingester, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		ingester:      ingester,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan struct{}),
		retryBackoff:  retryBackoff,
	}
}

// markReady signals Start that the first session has been set up
func (c *Consumer) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Consumer) isReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Start begins consuming messages from Kafka. It returns once the first
// session is set up, or with an error when joining the group fails or takes
// longer than the configured start timeout
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	consumeErr := make(chan error, 1)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &consumerGroupHandler{consumer: c}
		for {
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
				select {
				case consumeErr <- err:
				default:
				}

				select {
				case <-c.ctx.Done():
					return
				case <-time.After(c.retryBackoff):
				}
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	timeout := c.config.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Wait until consumer is ready
	select {
	case <-c.ready:
	case err := <-consumeErr:
		if !c.isReady() {
			c.cancel()
			c.wg.Wait()
			return fmt.Errorf("joining consumer group: %w", err)
		}
	case <-timer.C:
		c.cancel()
		c.wg.Wait()
		return fmt.Errorf("consumer group not ready after %s", timeout)
	}
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// handleMessage decodes and ingests one message, returning the metrics result
func (c *Consumer) handleMessage(message *sarama.ConsumerMessage) string {
	payload, err := service.DecodePayloadBytes(message.Value)
	if err != nil {
		c.logger.Warn("failed to decode stats message",
			"error", err,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return metrics.ResultInvalid
	}

	timeout := c.config.HandlerTimeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := c.ingester.Ingest(ctx, payload); err != nil {
		if domain.IsValidationError(err) {
			c.logger.Warn("invalid stats message",
				"error", err,
				"offset", message.Offset,
				"partition", message.Partition,
			)
			return metrics.ResultInvalid
		}
		c.logger.Error("failed to ingest stats message",
			"error", err,
			"player", payload.PlayerName,
			"offset", message.Offset,
		)
		return metrics.ResultFailed
	}
	return metrics.ResultIngested
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.markReady()
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim ingests messages from a topic partition one at a time.
// Every message is marked, including ones that failed to ingest; there is no retry
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			start := time.Now()
			result := h.consumer.handleMessage(message)
			metrics.KafkaMessagesTotal.WithLabelValues(result).Inc()
			session.MarkMessage(message, "")

			h.consumer.logger.Debug("processed stats message",
				"result", result,
				"partition", message.Partition,
				"offset", message.Offset,
				"duration", time.Since(start),
			)
		}
	}
}
