package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// DeliveryHandler handles one message body
type DeliveryHandler func(ctx context.Context, body []byte) error

// Acknowledger ack side of amqp.Delivery
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type deliveryAction string

const (
	actionAck     deliveryAction = "ack"
	actionDrop    deliveryAction = "drop"
	actionRequeue deliveryAction = "requeue"
)

// classify terminal outcomes are acked, everything else is redelivered
func classify(err error) deliveryAction {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, domain.ErrMalformedMessage),
		errors.Is(err, domain.ErrValidationRejected),
		errors.Is(err, domain.ErrInvalidTransition):
		return actionDrop
	default:
		return actionRequeue
	}
}

// QueueConsumer RabbitMQ consumer with manual ack
type QueueConsumer struct {
	name         string
	channel      *amqp.Channel
	queue        string
	handler      DeliveryHandler
	timeout      time.Duration
	requeueDelay time.Duration
	pending      sync.WaitGroup
}

// NewQueueConsumer create QueueConsumer
func NewQueueConsumer(name string, channel *amqp.Channel, queue string, handler DeliveryHandler, timeout, requeueDelay time.Duration) *QueueConsumer {
	return &QueueConsumer{
		name:         name,
		channel:      channel,
		queue:        queue,
		handler:      handler,
		timeout:      timeout,
		requeueDelay: requeueDelay,
	}
}

// Start 開始消費訊息, 直到 ctx 結束或 channel 關閉
func (c *QueueConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue, // queue
		c.name,  // consumer tag
		false,   // autoAck 為 false，使用手動確認
		false,   // exclusive
		false,   // noLocal
		false,   // noWait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	logger.Log.Info("consumer started", zap.String("consumer", c.name), zap.String("queue", c.queue))
	// 延遲中的 Nack 在離開前送出
	defer c.pending.Wait()

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer %s: delivery channel closed", c.name)
			}
			handleDelivery(ctx, c.name, d, d.Body, c.handler, c.timeout, c.requeueDelay, &c.pending)
		case <-ctx.Done():
			logger.Log.Info("consumer stopped", zap.String("consumer", c.name))
			return nil
		}
	}
}

// handleDelivery a requeue is nacked after requeueDelay in the background, so the loop keeps
// consuming up to the channel prefetch while the failed message waits
func handleDelivery(ctx context.Context, name string, ack Acknowledger, body []byte, h DeliveryHandler,
	timeout, requeueDelay time.Duration, pending *sync.WaitGroup) deliveryAction {
	hctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := h(hctx, body)
	action := classify(err)
	deliveryOutcomes.WithLabelValues(name, string(action)).Inc()

	switch action {
	case actionAck:
		if err := ack.Ack(false); err != nil {
			logger.Log.Errorf("確認訊息失敗:", err)
		}
	case actionDrop:
		logger.Log.Warn("message dropped", zap.String("consumer", name), zap.Error(err))
		if err := ack.Ack(false); err != nil {
			logger.Log.Errorf("確認訊息失敗:", err)
		}
	case actionRequeue:
		logger.Log.Error("message will be redelivered", zap.String("consumer", name), zap.Error(err))
		pending.Add(1)
		go func() {
			defer pending.Done()
			t := time.NewTimer(requeueDelay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
			if err := ack.Nack(false, true); err != nil {
				logger.Log.Errorf("Nack 訊息失敗:", err)
			}
		}()
	}
	return action
}

// NotificationHandler storage notification body -> Validator
func NotificationHandler(v *Validator) DeliveryHandler {
	return func(ctx context.Context, body []byte) error {
		records, err := domain.ParseStorageEvent(body)
		if err != nil {
			return err
		}
		var firstErr error
		for _, n := range records {
			if err := v.OnObjectCreated(ctx, n); err != nil && classify(err) == actionRequeue && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}

// CompletionDeliveryHandler completion body -> CompletionHandler
func CompletionDeliveryHandler(h *CompletionHandler) DeliveryHandler {
	return func(ctx context.Context, body []byte) error {
		c, err := domain.ParseTranscodeCompletion(body)
		if err != nil {
			return err
		}
		return h.OnTranscodeCompleted(ctx, c)
	}
}
