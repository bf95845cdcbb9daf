package app

import (
	"context"
	"fmt"
	"time"

	"video_ingest_service/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// SQSAPI subset of *sqs.Client
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConsumer long-polls S3 event notifications; messages not deleted are redelivered after the visibility timeout
type SQSConsumer struct {
	api      SQSAPI
	queueURL string
	handler  DeliveryHandler
	timeout  time.Duration
}

// NewSQSConsumer create SQSConsumer
func NewSQSConsumer(api SQSAPI, queueURL string, handler DeliveryHandler, timeout time.Duration) *SQSConsumer {
	return &SQSConsumer{api: api, queueURL: queueURL, handler: handler, timeout: timeout}
}

// Start poll until ctx is done
func (c *SQSConsumer) Start(ctx context.Context) error {
	logger.Log.Info("sqs consumer started", zap.String("queue", c.queueURL))
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.PollOnce(ctx); err != nil {
			logger.Log.Error("sqs receive failed", zap.Error(err))
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// PollOnce one receive round
func (c *SQSConsumer) PollOnce(ctx context.Context) error {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("receive %s: %w", c.queueURL, err)
	}
	for _, m := range out.Messages {
		c.handle(ctx, m)
	}
	return nil
}

func (c *SQSConsumer) handle(ctx context.Context, m types.Message) {
	hctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.handler(hctx, []byte(aws.ToString(m.Body)))
	action := classify(err)
	deliveryOutcomes.WithLabelValues("sqs", string(action)).Inc()
	if action == actionRequeue {
		logger.Log.Error("sqs message left for redelivery", zap.String("message_id", aws.ToString(m.MessageId)), zap.Error(err))
		return
	}
	if action == actionDrop {
		logger.Log.Warn("sqs message dropped", zap.String("message_id", aws.ToString(m.MessageId)), zap.Error(err))
	}

	if _, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		logger.Log.Error("sqs delete failed", zap.String("message_id", aws.ToString(m.MessageId)), zap.Error(err))
	}
}
