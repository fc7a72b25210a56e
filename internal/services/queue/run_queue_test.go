package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/pkg/queue"
)

func TestRunQueue_EnqueueAndDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	rq := NewRunQueue(client)
	ctx := context.Background()
	gameID := uuid.New()

	req := &queue.RunRequest{GameID: gameID, Turns: 3}
	if err := rq.Enqueue(ctx, req); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if req.RequestID == "" {
		t.Error("Expected request id to be set")
	}
	if req.EnqueuedAt.IsZero() {
		t.Error("Expected enqueue time to be set")
	}

	depth, err := rq.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 1 {
		t.Errorf("Expected depth 1, got %d", depth)
	}

	got, err := rq.BlockingDequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("BlockingDequeue failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a request, got nil")
	}
	if got.GameID != gameID || got.Turns != 3 || got.RequestID != req.RequestID {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestRunQueue_Requeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	rq := NewRunQueue(client)
	ctx := context.Background()

	first := &queue.RunRequest{GameID: uuid.New(), Turns: 1}
	second := &queue.RunRequest{GameID: uuid.New(), Turns: 2}
	if err := rq.Enqueue(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := rq.Enqueue(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := rq.BlockingDequeue(ctx, time.Second)
	if err != nil || got == nil {
		t.Fatalf("BlockingDequeue failed: %v", err)
	}
	if err := rq.Requeue(ctx, got); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	again, err := rq.BlockingDequeue(ctx, time.Second)
	if err != nil || again == nil {
		t.Fatalf("BlockingDequeue failed: %v", err)
	}
	if again.RequestID != first.RequestID {
		t.Errorf("Expected requeued request at head, got %s", again.RequestID)
	}
}

func TestRunQueue_Invalid(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	rq := NewRunQueue(client)
	tests := []struct {
		name string
		req  *queue.RunRequest
	}{
		{"missing game", &queue.RunRequest{Turns: 1}},
		{"zero turns", &queue.RunRequest{GameID: uuid.New()}},
		{"too many turns", &queue.RunRequest{GameID: uuid.New(), Turns: queue.MaxRunTurns + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rq.Enqueue(context.Background(), tt.req); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
	if depth, _ := rq.Depth(context.Background()); depth != 0 {
		t.Errorf("Expected nothing queued, got %d", depth)
	}
}

func TestRunRequest_JSON(t *testing.T) {
	req := &queue.RunRequest{RequestID: "r1", GameID: uuid.New(), Turns: 2}
	data, err := req.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := queue.FromJSON([]byte(`{"game_id":"not-a-uuid","turns":1}`)); err == nil {
		t.Error("Expected error for bad game id")
	}
	got, err := queue.FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if got.GameID != req.GameID {
		t.Errorf("Expected game id %s, got %s", req.GameID, got.GameID)
	}
}
