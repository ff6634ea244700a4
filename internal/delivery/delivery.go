// Package delivery fans a campaign out to its audience.
//
// For each recipient the service personalizes the campaign body, records a
// PENDING message log through the write coalescer, and submits the message
// to the vendor. Vendor acceptance is fire-and-forget: failures are logged
// and surface later as FAILED receipts, never as campaign-creation errors.
package delivery

import (
	"context"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/reachpoint/reachpoint/internal/batch"
	"github.com/reachpoint/reachpoint/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Concurrent vendor submissions per campaign.
const sendConcurrency = 8

// Sender abstracts the vendor client for tests.
type Sender interface {
	Send(ctx context.Context, msgID types.MessageID, custID types.CustomerID, message string) error
}

// Service delivers campaigns. Message logs flow through the messages
// coalescer so a large audience becomes a handful of bulk writes.
type Service struct {
	messages *batch.Coalescer
	vendor   Sender
	log      zerolog.Logger
}

// NewService builds the delivery service.
func NewService(messages *batch.Coalescer, vendor Sender, log zerolog.Logger) *Service {
	return &Service{
		messages: messages,
		vendor:   vendor,
		log:      log.With().Str("component", "delivery").Logger(),
	}
}

// Personalize substitutes the first {name} placeholder in the campaign
// body. Later occurrences stay literal.
func Personalize(body, name string) string {
	return strings.Replace(body, "{name}", name, 1)
}

// Deliver queues one PENDING message log per recipient and submits each
// message to the vendor. Returns the number of messages queued; the error
// is non-nil only when log queueing itself fails (queue full or stopped).
func (s *Service) Deliver(ctx context.Context, campaign types.Campaign, audience []types.Customer) (int, error) {
	type pending struct {
		msgID   types.MessageID
		custID  types.CustomerID
		message string
	}

	now := time.Now().UTC()
	sends := make([]pending, 0, len(audience))

	for _, cust := range audience {
		msg := types.MessageLog{
			ID:         types.NewMessageID(),
			CampaignID: campaign.ID,
			CustomerID: cust.ID,
			Message:    Personalize(campaign.Content.Body, cust.Name),
			Status:     types.MessagePending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		doc, err := asDoc(msg)
		if err != nil {
			return len(sends), err
		}
		if err := s.messages.Enqueue(string(msg.ID), types.Patch{Doc: doc}); err != nil {
			return len(sends), err
		}

		sends = append(sends, pending{msgID: msg.ID, custID: cust.ID, message: msg.Message})
	}

	// Vendor fan-out is detached from the request: the campaign response
	// does not wait for acceptance, and a slow vendor only delays receipts.
	go func() {
		g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
		g.SetLimit(sendConcurrency)
		for _, p := range sends {
			p := p
			g.Go(func() error {
				if err := s.vendor.Send(gctx, p.msgID, p.custID, p.message); err != nil {
					s.log.Warn().Err(err).
						Str("message_id", string(p.msgID)).
						Str("campaign_id", string(campaign.ID)).
						Msg("vendor rejected message")
				}
				return nil
			})
		}
		g.Wait()
		s.log.Info().
			Str("campaign_id", string(campaign.ID)).
			Int("messages", len(sends)).
			Msg("campaign fan-out complete")
	}()

	return len(sends), nil
}

// asDoc round-trips a struct through JSON into the patch document form.
func asDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
