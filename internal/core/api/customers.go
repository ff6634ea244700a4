package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/types"
)

type createCustomerRequest struct {
	Name       string     `json:"name" validate:"required"`
	Email      string     `json:"email" validate:"required,email"`
	Phone      string     `json:"phone"`
	TotalSpend float64    `json:"totalSpend" validate:"gte=0"`
	Visits     int        `json:"visits" validate:"gte=0"`
	LastActive *time.Time `json:"lastActive"`
}

// createCustomer queues a new customer document. The write lands on the
// next coalescer flush; the response acknowledges acceptance, not
// durability.
func (s *Service) createCustomer(w http.ResponseWriter, r *http.Request) error {
	var req createCustomerRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	existing, err := store.FetchAll[types.Customer](r.Context(), s.customers)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if strings.EqualFold(c.Email, req.Email) {
			return conflict("customer email already exists")
		}
	}

	now := time.Now().UTC()
	lastActive := now
	if req.LastActive != nil {
		lastActive = req.LastActive.UTC()
	}

	cust := types.Customer{
		ID:         types.NewCustomerID(),
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		TotalSpend: req.TotalSpend,
		Visits:     req.Visits,
		LastActive: lastActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	doc, err := asDoc(cust)
	if err != nil {
		return err
	}
	if err := s.coal.Customers.Enqueue(string(cust.ID), types.Patch{Doc: doc}); err != nil {
		return err
	}

	return writeJSON(w, http.StatusAccepted, cust)
}

// listCustomers returns all customers, newest first.
func (s *Service) listCustomers(w http.ResponseWriter, r *http.Request) error {
	customers, err := store.List[types.Customer](r.Context(), s.customers)
	if err != nil {
		return err
	}
	if len(customers) == 0 {
		return notFound("no customers found")
	}
	return writeJSON(w, http.StatusOK, customers)
}

// getCustomer returns one customer by id.
func (s *Service) getCustomer(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	cust, err := store.Get[types.Customer](r.Context(), s.customers, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, cust)
}

// customerSegments returns the segments whose rules match this customer.
func (s *Service) customerSegments(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	rec, err := s.customers.GetRecord(r.Context(), id)
	if err != nil {
		return err
	}

	segments, err := store.List[types.Segment](r.Context(), s.segments)
	if err != nil {
		return err
	}

	matched := make([]types.Segment, 0)
	for _, seg := range segments {
		if s.engine.Evaluate(seg.Rules, rec) {
			matched = append(matched, seg)
		}
	}
	return writeJSON(w, http.StatusOK, matched)
}
