package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/reachpoint/reachpoint/internal/types"
)

// vendorRequest is the dummy vendor's send payload. The vendor reports the
// outcome asynchronously by POSTing a delivery receipt back to the API.
type vendorRequest struct {
	CommunicationLogID types.MessageID  `json:"communicationLogId"`
	CustomerID         types.CustomerID `json:"customerId"`
	Message            string           `json:"message"`
}

// VendorClient submits personalized messages to the external message
// vendor.
type VendorClient struct {
	http *resty.Client
}

// NewVendorClient builds a client for the vendor send endpoint.
func NewVendorClient(sendURL string) *VendorClient {
	client := resty.New().
		SetBaseURL(sendURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond)
	return &VendorClient{http: client}
}

// Send submits one message. Acceptance only; delivery outcome arrives later
// as a receipt.
func (v *VendorClient) Send(ctx context.Context, msgID types.MessageID, custID types.CustomerID, message string) error {
	resp, err := v.http.R().
		SetContext(ctx).
		SetBody(vendorRequest{
			CommunicationLogID: msgID,
			CustomerID:         custID,
			Message:            message,
		}).
		Post("")
	if err != nil {
		return fmt.Errorf("vendor send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("vendor send failed: status %d", resp.StatusCode())
	}
	return nil
}
