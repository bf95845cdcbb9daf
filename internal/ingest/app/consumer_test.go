package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(_, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func TestClassify(t *testing.T) {
	assert.Equal(t, actionAck, classify(nil))
	assert.Equal(t, actionDrop, classify(fmt.Errorf("%w: bad json", domain.ErrMalformedMessage)))
	assert.Equal(t, actionDrop, classify(fmt.Errorf("%w: pdf", domain.ErrValidationRejected)))
	assert.Equal(t, actionRequeue, classify(fmt.Errorf("%w: db down", domain.ErrTransientInfra)))
	assert.Equal(t, actionRequeue, classify(domain.ErrStaleTransition))
	assert.Equal(t, actionRequeue, classify(errors.New("unknown")))
}

func TestHandleDelivery(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	tests := []struct {
		name    string
		err     error
		acked   bool
		requeue bool
	}{
		{"success", nil, true, false},
		{"malformed dropped", domain.ErrMalformedMessage, true, false},
		{"transient requeued", domain.ErrTransientInfra, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			var sawDeadline bool
			h := func(ctx context.Context, _ []byte) error {
				_, sawDeadline = ctx.Deadline()
				return tt.err
			}
			var pending sync.WaitGroup
			handleDelivery(ctx, "test", ack, []byte("{}"), h, time.Second, time.Millisecond, &pending)
			pending.Wait()
			assert.True(t, sawDeadline)
			assert.Equal(t, tt.acked, ack.acked)
			assert.Equal(t, tt.requeue, ack.requeued)
		})
	}
}

func TestHandleDeliveryRequeueDoesNotBlock(t *testing.T) {
	logger.SetNewNop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pending sync.WaitGroup
	slow := &fakeAck{}
	h := func(context.Context, []byte) error { return domain.ErrTransientInfra }

	start := time.Now()
	action := handleDelivery(ctx, "test", slow, nil, h, time.Second, time.Hour, &pending)
	assert.Equal(t, actionRequeue, action)
	assert.Less(t, time.Since(start), time.Minute)

	// 下一則訊息不必等前一則的延遲
	next := &fakeAck{}
	handleDelivery(ctx, "test", next, nil, func(context.Context, []byte) error { return nil }, time.Second, time.Hour, &pending)
	assert.True(t, next.acked)

	// 關閉時延遲中的 Nack 立即送出
	cancel()
	pending.Wait()
	assert.True(t, slow.requeued)
}

func TestNotificationHandlerMalformed(t *testing.T) {
	h := NotificationHandler(nil)
	err := h(context.Background(), []byte("<xml/>"))
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestNotificationHandlerDispatchesRecords(t *testing.T) {
	f := newPipelineFixture(t)
	f.register(t, "a1", domain.StatusPendingUpload)
	f.store.put(quarantineBucket, domain.QuarantineKey("a1"), "application/pdf", 1)

	body := []byte(`{"Records":[{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"quarantine"},"object":{"key":"uploads/a1/source","size":1}}}]}`)
	// 拒絕是終態, 不需要重送
	assert.NoError(t, NotificationHandler(f.validator)(context.Background(), body))
	assert.Equal(t, domain.StatusRejected, f.status(t, "a1").Status)
}

func TestCompletionDeliveryHandlerMalformed(t *testing.T) {
	err := CompletionDeliveryHandler(nil)(context.Background(), []byte(`{"jobId":""}`))
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.DeleteMessageOutput)
	return out, args.Error(1)
}

func TestSQSConsumerPollOnce(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	api := new(mockSQS)
	api.On("ReceiveMessage", ctx, mock.Anything).Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{
		{MessageId: aws.String("ok"), ReceiptHandle: aws.String("r-ok"), Body: aws.String("ok")},
		{MessageId: aws.String("retry"), ReceiptHandle: aws.String("r-retry"), Body: aws.String("retry")},
		{MessageId: aws.String("bad"), ReceiptHandle: aws.String("r-bad"), Body: aws.String("bad")},
	}}, nil).Once()
	api.On("DeleteMessage", ctx, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		h := aws.ToString(in.ReceiptHandle)
		return h == "r-ok" || h == "r-bad"
	})).Return(&sqs.DeleteMessageOutput{}, nil).Twice()

	handler := func(_ context.Context, body []byte) error {
		switch string(body) {
		case "retry":
			return domain.ErrTransientInfra
		case "bad":
			return domain.ErrMalformedMessage
		}
		return nil
	}

	require.NoError(t, NewSQSConsumer(api, "https://sqs.local/q", handler, time.Second).PollOnce(ctx))
	api.AssertExpectations(t)
}
