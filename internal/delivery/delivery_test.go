package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/batch"
	"github.com/reachpoint/reachpoint/internal/types"
)

type captureSink struct {
	mu  sync.Mutex
	ops []batch.Op
}

func (s *captureSink) BulkUpsert(ctx context.Context, ops []batch.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, ops...)
	return nil
}

type captureSender struct {
	sent chan types.MessageID
}

func (s *captureSender) Send(ctx context.Context, msgID types.MessageID, custID types.CustomerID, message string) error {
	s.sent <- msgID
	return nil
}

func TestPersonalize(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "replaces placeholder", body: "Hi {name}, 10% off!", want: "Hi Alice, 10% off!"},
		{name: "only first occurrence", body: "{name} and {name}", want: "Alice and {name}"},
		{name: "no placeholder untouched", body: "Flash sale today", want: "Flash sale today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Personalize(tt.body, "Alice"); got != tt.want {
				t.Errorf("Personalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeliver(t *testing.T) {
	sink := &captureSink{}
	coalescer := batch.New(sink, batch.Config{
		FlushInterval: time.Hour,
		Clock:         clockwork.NewFakeClock(),
		Logger:        zerolog.Nop(),
	})
	sender := &captureSender{sent: make(chan types.MessageID, 8)}
	svc := NewService(coalescer, sender, zerolog.Nop())

	campaign := types.Campaign{
		ID:      types.NewCampaignID(),
		Content: types.CampaignContent{Subject: "Sale", Body: "Hi {name}, welcome back!"},
	}
	audience := []types.Customer{
		{ID: types.NewCustomerID(), Name: "Alice"},
		{ID: types.NewCustomerID(), Name: "Bob"},
	}

	queued, err := svc.Deliver(context.Background(), campaign, audience)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}
	if coalescer.Len() != 2 {
		t.Errorf("coalescer queue = %d, want 2 pending logs", coalescer.Len())
	}

	// Vendor fan-out runs detached; wait for both submissions.
	for i := 0; i < 2; i++ {
		select {
		case <-sender.sent:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for vendor submission")
		}
	}

	// Drain the coalescer and inspect the queued log documents.
	if err := coalescer.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ops) != 2 {
		t.Fatalf("flushed ops = %d, want 2", len(sink.ops))
	}

	first := sink.ops[0].Patch.Doc
	if first["status"] != string(types.MessagePending) {
		t.Errorf("log status = %v, want PENDING", first["status"])
	}
	if first["message"] != "Hi Alice, welcome back!" {
		t.Errorf("log message = %v, want personalized body", first["message"])
	}
	if first["campaignId"] != string(campaign.ID) {
		t.Errorf("log campaignId = %v, want %s", first["campaignId"], campaign.ID)
	}
}
