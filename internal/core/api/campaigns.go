package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/reachpoint/reachpoint/internal/core/auth"
	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/types"
)

type campaignRequest struct {
	Name         string                `json:"name" validate:"required"`
	Description  string                `json:"description"`
	Type         types.CampaignType    `json:"type"`
	SegmentID    string                `json:"segmentId" validate:"required"`
	Content      types.CampaignContent `json:"content"`
	ScheduleDate *time.Time            `json:"scheduleDate"`
}

type updateCampaignRequest struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Content      *types.CampaignContent `json:"content"`
	Status       types.CampaignStatus   `json:"status"`
	ScheduleDate *time.Time             `json:"scheduleDate"`
}

type suggestRequest struct {
	Name      string `json:"name" validate:"required"`
	Objective string `json:"objective"`
}

type suggestResponse struct {
	Suggestions []types.CampaignContent `json:"suggestions"`
}

// createCampaign resolves the target segment's audience, queues the
// campaign document, and kicks off delivery. The response returns before
// any message reaches the vendor.
func (s *Service) createCampaign(w http.ResponseWriter, r *http.Request) error {
	var req campaignRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}
	if !types.ValidID(req.SegmentID) {
		return badRequest("invalid segmentId")
	}
	if req.Content.Body == "" {
		return badRequest("content.body is required")
	}

	ctype := req.Type
	if ctype == "" {
		ctype = types.CampaignEmail
	}
	if !types.ValidCampaignType(ctype) {
		return badRequest("invalid campaign type")
	}

	seg, err := store.Get[types.Segment](r.Context(), s.segments, req.SegmentID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return notFound("segment not found")
		}
		return err
	}

	audience, err := s.segmentAudience(r, seg)
	if err != nil {
		return err
	}

	creator, _ := auth.UserIDFromContext(r.Context())
	now := time.Now().UTC()

	status := types.CampaignSending
	if req.ScheduleDate != nil && req.ScheduleDate.After(now) {
		status = types.CampaignScheduled
	}

	camp := types.Campaign{
		ID:           types.NewCampaignID(),
		Name:         req.Name,
		Description:  req.Description,
		Type:         ctype,
		SegmentID:    seg.ID,
		Content:      req.Content,
		Creator:      creator,
		AudienceSize: len(audience),
		Status:       status,
		ScheduleDate: req.ScheduleDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	doc, err := asDoc(camp)
	if err != nil {
		return err
	}
	if err := s.coal.Campaigns.Enqueue(string(camp.ID), types.Patch{Doc: doc}); err != nil {
		return err
	}

	if status == types.CampaignSending {
		queued, err := s.delivery.Deliver(r.Context(), camp, audience)
		if err != nil {
			s.log.Error().Err(err).
				Str("campaign_id", string(camp.ID)).
				Int("queued", queued).
				Msg("campaign delivery partially queued")
		}
	}

	return writeJSON(w, http.StatusCreated, camp)
}

// segmentAudience returns the typed customers matching a segment's rules.
func (s *Service) segmentAudience(r *http.Request, seg *types.Segment) ([]types.Customer, error) {
	population, err := s.customers.FetchAllRecords(r.Context())
	if err != nil {
		return nil, err
	}
	matched := s.engine.MatchingSubset(seg.Rules, population)

	raw, err := json.Marshal(matched)
	if err != nil {
		return nil, err
	}
	var audience []types.Customer
	if err := json.Unmarshal(raw, &audience); err != nil {
		return nil, err
	}
	return audience, nil
}

// campaignStats aggregates message logs into per-campaign counters.
type campaignStats struct {
	sent    int
	failed  int
	pending int
}

func (s *Service) messageStats(r *http.Request) (map[types.CampaignID]campaignStats, error) {
	logs, err := store.FetchAll[types.MessageLog](r.Context(), s.messages)
	if err != nil {
		return nil, err
	}
	stats := make(map[types.CampaignID]campaignStats)
	for _, l := range logs {
		st := stats[l.CampaignID]
		switch l.Status {
		case types.MessageSent:
			st.sent++
		case types.MessageFailed:
			st.failed++
		default:
			st.pending++
		}
		stats[l.CampaignID] = st
	}
	return stats, nil
}

// applyStats folds live counters into a campaign. A sending campaign whose
// logs all resolved flips to completed.
func applyStats(camp *types.Campaign, st campaignStats) {
	camp.Sent = st.sent
	camp.Failed = st.failed
	total := st.sent + st.failed + st.pending
	if camp.Status == types.CampaignSending && total > 0 && st.pending == 0 {
		camp.Status = types.CampaignCompleted
	}
}

// listCampaigns returns all campaigns, newest first, with delivery
// counters aggregated from the message logs.
func (s *Service) listCampaigns(w http.ResponseWriter, r *http.Request) error {
	campaigns, err := store.List[types.Campaign](r.Context(), s.campaigns)
	if err != nil {
		return err
	}

	stats, err := s.messageStats(r)
	if err != nil {
		return err
	}
	for i := range campaigns {
		applyStats(&campaigns[i], stats[campaigns[i].ID])
	}
	return writeJSON(w, http.StatusOK, campaigns)
}

// getCampaign returns one campaign with fresh counters. The refreshed
// values are also queued back to storage so the stored document converges.
func (s *Service) getCampaign(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	camp, err := store.Get[types.Campaign](r.Context(), s.campaigns, id)
	if err != nil {
		return err
	}

	stats, err := s.messageStats(r)
	if err != nil {
		return err
	}

	before := *camp
	applyStats(camp, stats[camp.ID])

	if camp.Sent != before.Sent || camp.Failed != before.Failed || camp.Status != before.Status {
		now := time.Now().UTC()
		set := map[string]any{
			"sent":      camp.Sent,
			"failed":    camp.Failed,
			"status":    camp.Status,
			"updatedAt": now,
		}
		if camp.Status == types.CampaignCompleted && camp.CompletedAt == nil {
			camp.CompletedAt = &now
			set["completedAt"] = now
		}
		if err := s.coal.Campaigns.Enqueue(id, types.Patch{Set: set}); err != nil {
			s.log.Warn().Err(err).Str("campaign_id", id).Msg("stats refresh not queued")
		}
	}

	return writeJSON(w, http.StatusOK, camp)
}

// updateCampaign queues a partial update. Only the creator may modify a
// campaign.
func (s *Service) updateCampaign(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	camp, err := store.Get[types.Campaign](r.Context(), s.campaigns, id)
	if err != nil {
		return err
	}

	caller, _ := auth.UserIDFromContext(r.Context())
	if camp.Creator != caller {
		return forbidden("only the campaign creator may modify it")
	}

	var req updateCampaignRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	now := time.Now().UTC()
	set := map[string]any{"updatedAt": now}
	if req.Name != "" {
		camp.Name = req.Name
		set["name"] = req.Name
	}
	if req.Description != "" {
		camp.Description = req.Description
		set["description"] = req.Description
	}
	if req.Content != nil {
		if req.Content.Body == "" {
			return badRequest("content.body is required")
		}
		camp.Content = *req.Content
		set["content"] = req.Content
	}
	if req.Status != "" {
		if !types.ValidCampaignStatus(req.Status) {
			return badRequest("invalid campaign status")
		}
		camp.Status = req.Status
		set["status"] = req.Status
	}
	if req.ScheduleDate != nil {
		camp.ScheduleDate = req.ScheduleDate
		set["scheduleDate"] = req.ScheduleDate
	}
	if len(set) == 1 {
		return badRequest("nothing to update")
	}
	camp.UpdatedAt = now

	if err := s.coal.Campaigns.Enqueue(id, types.Patch{Set: set}); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, camp)
}

// deleteCampaign removes a campaign immediately.
func (s *Service) deleteCampaign(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.campaigns.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// suggestMessages generates message variants for a campaign draft.
func (s *Service) suggestMessages(w http.ResponseWriter, r *http.Request) error {
	if s.suggest == nil {
		return &httpError{status: http.StatusServiceUnavailable, msg: "suggestions not configured"}
	}

	var req suggestRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	variants, err := s.suggest.Suggest(r.Context(), req.Name, req.Objective)
	if err != nil {
		s.log.Error().Err(err).Msg("suggestion backends failed")
		return &httpError{status: http.StatusBadGateway, msg: "suggestion backend unavailable"}
	}
	return writeJSON(w, http.StatusOK, suggestResponse{Suggestions: variants})
}
