package worker

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
)

func TestHandleOrderTimeoutCancelNilConsumer(t *testing.T) {
	var c *Consumer
	if err := c.handleOrderTimeoutCancel(context.Background(), asynq.NewTask("order:timeout_cancel", nil)); err != nil {
		t.Fatalf("expected nil error for nil consumer, got %v", err)
	}
}

func TestHandleOrderTimeoutCancelInvalidPayload(t *testing.T) {
	c := NewConsumer(nil)
	task := asynq.NewTask("order:timeout_cancel", []byte("not-json"))
	if err := c.handleOrderTimeoutCancel(context.Background(), task); err == nil {
		t.Fatalf("expected unmarshal error for invalid payload")
	}
}

func TestHandleOrderTimeoutCancelZeroOrderID(t *testing.T) {
	c := NewConsumer(nil)
	task := asynq.NewTask("order:timeout_cancel", []byte(`{"order_id":0}`))
	if err := c.handleOrderTimeoutCancel(context.Background(), task); err != nil {
		t.Fatalf("expected zero order id to be skipped, got %v", err)
	}
}
