// Package events consumes message-created records from Kafka and hands them
// to the notification fan-out hook.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/nexus-realtime/internal/notify"
)

const (
	hookTimeout  = 10 * time.Second
	retryBackoff = time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads JSON notify.Message records and forwards each to a Hook.
// An offset is committed only after the hook has returned for its record.
type Consumer struct {
	reader messageReader
	hook   notify.Hook
	log    logrus.FieldLogger
}

// NewConsumer builds a consumer-group reader over topic.
func NewConsumer(brokers []string, topic, groupID string, hook notify.Hook, log logrus.FieldLogger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: no kafka brokers")
	}
	if topic == "" {
		return nil, errors.New("events: empty topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return newConsumer(reader, hook, log), nil
}

func newConsumer(reader messageReader, hook notify.Hook, log logrus.FieldLogger) *Consumer {
	return &Consumer{reader: reader, hook: hook, log: log}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		record, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WithError(err).Warn("kafka fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryBackoff):
			}
			continue
		}

		c.handle(ctx, record)

		if err := c.reader.CommitMessages(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WithError(err).WithField("offset", record.Offset).Warn("kafka commit failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, record kafka.Message) {
	msg, err := Decode(record.Value)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"topic":     record.Topic,
			"partition": record.Partition,
			"offset":    record.Offset,
		}).Warn("skipping undecodable message record")
		return
	}

	hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()
	c.hook.OnMessageCreated(hookCtx, msg)
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Decode parses one record value.
func Decode(value []byte) (notify.Message, error) {
	var msg notify.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return notify.Message{}, fmt.Errorf("events: decode message: %w", err)
	}
	return msg, nil
}
