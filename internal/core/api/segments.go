package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/reachpoint/reachpoint/internal/core/auth"
	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/types"
)

type segmentRequest struct {
	Name  string          `json:"name" validate:"required"`
	Rules *types.RuleNode `json:"rules" validate:"required"`
}

type updateSegmentRequest struct {
	Name  string          `json:"name"`
	Rules *types.RuleNode `json:"rules"`
}

type previewResponse struct {
	AudienceSize int `json:"audienceSize"`
}

// segmentView is a segment plus live-computed audience data.
type segmentView struct {
	types.Segment
	SampleNames []string `json:"sampleNames,omitempty"`
}

const sampleNameLimit = 5

// createSegment computes the audience size for the rule tree and queues
// the new segment document.
func (s *Service) createSegment(w http.ResponseWriter, r *http.Request) error {
	var req segmentRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}
	if err := req.Rules.Validate(); err != nil {
		return err
	}

	creator, _ := auth.UserIDFromContext(r.Context())

	// Segment names are unique per creator.
	existing, err := store.FetchAll[types.Segment](r.Context(), s.segments)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.Creator == creator && strings.EqualFold(other.Name, req.Name) {
			return conflict("segment name already in use")
		}
	}

	population, err := s.customers.FetchAllRecords(r.Context())
	if err != nil {
		return err
	}
	size := len(s.engine.MatchingSubset(req.Rules, population))

	now := time.Now().UTC()
	seg := types.Segment{
		ID:           types.NewSegmentID(),
		Name:         req.Name,
		Rules:        req.Rules,
		Creator:      creator,
		AudienceSize: size,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	doc, err := asDoc(seg)
	if err != nil {
		return err
	}
	if err := s.coal.Segments.Enqueue(string(seg.ID), types.Patch{Doc: doc}); err != nil {
		return err
	}

	return writeJSON(w, http.StatusCreated, seg)
}

// listSegments returns all segments with audience sizes recomputed against
// the current customer population.
func (s *Service) listSegments(w http.ResponseWriter, r *http.Request) error {
	segments, err := store.List[types.Segment](r.Context(), s.segments)
	if err != nil {
		return err
	}

	population, err := s.customers.FetchAllRecords(r.Context())
	if err != nil {
		return err
	}
	for i := range segments {
		segments[i].AudienceSize = len(s.engine.MatchingSubset(segments[i].Rules, population))
	}
	return writeJSON(w, http.StatusOK, segments)
}

// previewSegment evaluates a rule tree without persisting anything.
func (s *Service) previewSegment(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Rules *types.RuleNode `json:"rules" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		return err
	}
	if err := req.Rules.Validate(); err != nil {
		return err
	}

	population, err := s.customers.FetchAllRecords(r.Context())
	if err != nil {
		return err
	}
	size := len(s.engine.MatchingSubset(req.Rules, population))
	return writeJSON(w, http.StatusOK, previewResponse{AudienceSize: size})
}

// getSegment returns one segment with a live audience size and up to five
// matching customer names as a sample.
func (s *Service) getSegment(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	seg, err := store.Get[types.Segment](r.Context(), s.segments, id)
	if err != nil {
		return err
	}

	population, err := s.customers.FetchAllRecords(r.Context())
	if err != nil {
		return err
	}
	matched := s.engine.MatchingSubset(seg.Rules, population)
	seg.AudienceSize = len(matched)

	view := segmentView{Segment: *seg}
	for _, rec := range matched {
		if len(view.SampleNames) == sampleNameLimit {
			break
		}
		if name, ok := rec["name"].(string); ok {
			view.SampleNames = append(view.SampleNames, name)
		}
	}
	return writeJSON(w, http.StatusOK, view)
}

// updateSegment queues a partial update. The response reflects the state
// the queued patch will produce.
func (s *Service) updateSegment(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	seg, err := store.Get[types.Segment](r.Context(), s.segments, id)
	if err != nil {
		return err
	}

	var req updateSegmentRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}
	if req.Name == "" && req.Rules == nil {
		return badRequest("nothing to update")
	}

	now := time.Now().UTC()
	set := map[string]any{"updatedAt": now}
	if req.Name != "" {
		seg.Name = req.Name
		set["name"] = req.Name
	}
	if req.Rules != nil {
		if err := req.Rules.Validate(); err != nil {
			return err
		}
		population, err := s.customers.FetchAllRecords(r.Context())
		if err != nil {
			return err
		}
		seg.Rules = req.Rules
		seg.AudienceSize = len(s.engine.MatchingSubset(req.Rules, population))
		set["rules"] = req.Rules
		set["audienceSize"] = seg.AudienceSize
	}
	seg.UpdatedAt = now

	if err := s.coal.Segments.Enqueue(id, types.Patch{Set: set}); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, seg)
}

// deleteSegment removes a segment immediately; deletes do not coalesce.
func (s *Service) deleteSegment(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.segments.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
