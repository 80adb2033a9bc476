package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/invigilo/invigilo/internal/detect"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Dispatcher routes a parsed signal to its session pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, examID, email, username string, sig detect.Signal)
}

// Consumer reads raw proctoring signals from the Redis stream through a
// consumer group and feeds them to the session manager. Malformed entries
// are acknowledged and dropped so they can never poison the loop.
type Consumer struct {
	client              *redis.Client
	streamKey           string
	consumerGroup       string
	consumerName        string
	dispatcher          Dispatcher
	retentionDuration   time.Duration
	pelRecoveryInterval time.Duration
	cleanupInterval     time.Duration
	lastPELCheck        time.Time
}

func NewConsumer(
	client *redis.Client,
	streamKey string,
	consumerGroup string,
	consumerName string,
	dispatcher Dispatcher,
	retentionDuration time.Duration,
) *Consumer {
	return &Consumer{
		client:              client,
		streamKey:           streamKey,
		consumerGroup:       consumerGroup,
		consumerName:        consumerName,
		dispatcher:          dispatcher,
		retentionDuration:   retentionDuration,
		pelRecoveryInterval: 30 * time.Second,
		cleanupInterval:     1 * time.Hour,
		lastPELCheck:        time.Now(),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.createConsumerGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group, may already exist")
	}

	// Recover PEL messages on startup (crash recovery).
	if err := c.recoverPEL(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover PEL messages on startup")
	}
	c.lastPELCheck = time.Now()

	go c.runCleanupPeriodically(ctx)
	log.Info().
		Dur("cleanup_interval", c.cleanupInterval).
		Dur("retention", c.retentionDuration).
		Msg("Started signal stream cleanup goroutine")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consume(ctx); err != nil {
				log.Error().Err(err).Msg("Error consuming signal messages")
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context) error {
	// MKSTREAM creates the stream if it doesn't exist yet.
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.consumerGroup, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			log.Debug().
				Str("group", c.consumerGroup).
				Msg("Consumer group already exists")
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().
		Str("group", c.consumerGroup).
		Str("stream", c.streamKey).
		Msg("Created new consumer group (will only read new messages)")
	return nil
}

// recoverPEL claims and reprocesses messages another consumer took but never
// acknowledged.
func (c *Consumer) recoverPEL(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.streamKey,
		Group:  c.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	minIdleTime := 1 * time.Minute
	messageIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle >= minIdleTime {
			messageIDs = append(messageIDs, p.ID)
		}
	}

	if len(messageIDs) == 0 {
		return nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.streamKey,
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		MinIdle:  minIdleTime,
		Messages: messageIDs,
	}).Result()

	if err != nil {
		return fmt.Errorf("failed to claim messages: %w", err)
	}

	if len(claimed) > 0 {
		log.Info().Int("claimed", len(claimed)).Msg("Claimed idle PEL messages, processing")
		for i := range claimed {
			c.processMessage(ctx, &claimed[i])
		}
	}

	return nil
}

func (c *Consumer) consume(ctx context.Context) error {
	if time.Since(c.lastPELCheck) > c.pelRecoveryInterval {
		if err := c.recoverPEL(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to recover PEL messages")
		}
		c.lastPELCheck = time.Now()
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.streamKey, ">"},
		Count:    32,
		Block:    time.Second,
	}).Result()

	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		if stream.Stream != c.streamKey {
			continue
		}
		for i := range stream.Messages {
			c.processMessage(ctx, &stream.Messages[i])
		}
	}

	return nil
}

// processMessage parses and dispatches one entry. Dispatch is in-memory and
// cannot fail transiently, so every message is acknowledged: a malformed
// one is logged and dropped rather than redelivered forever.
func (c *Consumer) processMessage(ctx context.Context, msg *redis.XMessage) {
	parsed, err := ParseSignalMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed signal message")
		c.acknowledge(ctx, msg.ID)
		return
	}

	c.dispatcher.Dispatch(ctx, parsed.ExamID, parsed.Email, parsed.Username, parsed.Signal)
	c.acknowledge(ctx, msg.ID)
}

// cleanupOldMessages trims entries older than the retention window.
func (c *Consumer) cleanupOldMessages(ctx context.Context) error {
	cutoffTime := time.Now().Add(-c.retentionDuration)
	minID := fmt.Sprintf("%d-0", cutoffTime.UnixMilli())

	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, minID).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}

	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Dur("retention", c.retentionDuration).
			Msg("Cleaned up old signal messages from stream")
	}

	return nil
}

func (c *Consumer) runCleanupPeriodically(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	if err := c.cleanupOldMessages(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to run initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Signal stream cleanup goroutine shutting down")
			return
		case <-ticker.C:
			if err := c.cleanupOldMessages(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old messages")
			}
		}
	}
}

func (c *Consumer) acknowledge(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.streamKey, c.consumerGroup, messageID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to acknowledge message")
	}
}
