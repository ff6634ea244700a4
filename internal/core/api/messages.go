package api

import (
	"net/http"
	"time"

	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/types"
)

type receiptRequest struct {
	CommunicationLogID string `json:"communicationLogId" validate:"required"`
	Status             string `json:"status" validate:"required,oneof=SENT FAILED"`
	ErrorMessage       string `json:"errorMessage"`
}

// listMessages returns message logs, newest first, optionally filtered by
// ?campaignId=.
func (s *Service) listMessages(w http.ResponseWriter, r *http.Request) error {
	logs, err := store.List[types.MessageLog](r.Context(), s.messages)
	if err != nil {
		return err
	}

	if campaignID := r.URL.Query().Get("campaignId"); campaignID != "" {
		filtered := make([]types.MessageLog, 0, len(logs))
		for _, l := range logs {
			if string(l.CampaignID) == campaignID {
				filtered = append(filtered, l)
			}
		}
		logs = filtered
	}
	return writeJSON(w, http.StatusOK, logs)
}

// deliveryReceipt records a vendor delivery outcome. The status update is
// queued through the messages coalescer, so a burst of receipts becomes a
// handful of bulk writes.
func (s *Service) deliveryReceipt(w http.ResponseWriter, r *http.Request) error {
	var req receiptRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}
	if !types.ValidID(req.CommunicationLogID) {
		return badRequest("invalid communicationLogId")
	}

	now := time.Now().UTC()
	set := map[string]any{
		"status":    req.Status,
		"updatedAt": now,
	}
	if req.Status == string(types.MessageSent) {
		set["sentAt"] = now
	}
	if req.ErrorMessage != "" {
		set["errorMessage"] = req.ErrorMessage
	}

	// The receipt touches only the log. Campaign sent/failed counters are
	// derived from the logs at read time, with one writer for the stored
	// values (the convergence patch in getCampaign); a second writer here
	// would race it and double-count.
	if err := s.coal.Messages.Enqueue(req.CommunicationLogID, types.Patch{Set: set}); err != nil {
		return err
	}

	return writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
