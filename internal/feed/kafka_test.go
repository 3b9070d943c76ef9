package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joloLG/joloRide/internal/models"
)

type fakeReader struct {
	msgs   chan kafka.Message
	closed chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{msgs: make(chan kafka.Message, 4), closed: make(chan struct{})}
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeReader) Close() error {
	close(f.closed)
	return nil
}

func TestRelayForwardsEventsIntoHub(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe(Filter{Types: []models.EventType{models.EventInsert}})
	defer sub.Close()

	reader := newFakeReader()
	relay := &Relay{Reader: reader, Hub: hub, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	reader.msgs <- kafka.Message{Value: []byte("not json")}
	b, _ := json.Marshal(models.OrderEvent{Type: models.EventInsert, OrderID: "O1", Status: models.StatusPending})
	reader.msgs <- kafka.Message{Key: []byte("O1"), Value: b}

	select {
	case e := <-sub.C:
		if e.OrderID != "O1" || e.Type != models.EventInsert {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed event")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
	select {
	case <-reader.closed:
	default:
		t.Fatal("expected reader closed on shutdown")
	}
}

type failingReader struct{ calls int }

func (f *failingReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	f.calls++
	return kafka.Message{}, errors.New("broker down")
}

func (f *failingReader) Close() error { return nil }

func TestRelayStopsDuringBackoff(t *testing.T) {
	reader := &failingReader{}
	relay := &Relay{Reader: reader, Hub: NewHub(nil), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := relay.Run(ctx); err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("expected a single read before backing off, got %d", reader.calls)
	}
}

func TestKafkaPublisherDoesNotWaitForBatches(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "order-events")
	defer p.Close()
	if p.writer.BatchTimeout <= 0 || p.writer.BatchTimeout > 10*time.Millisecond {
		t.Fatalf("expected a batch timeout of a few ms, got %s", p.writer.BatchTimeout)
	}
	if _, ok := p.writer.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("expected events keyed by order id to hash, got %T", p.writer.Balancer)
	}
}
