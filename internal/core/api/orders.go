package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/types"
)

type createOrderRequest struct {
	CustomerID string            `json:"customerId" validate:"required"`
	Amount     float64           `json:"amount" validate:"required,gt=0"`
	Items      []types.OrderItem `json:"items" validate:"dive"`
	Status     types.OrderStatus `json:"status"`
	OrderDate  *time.Time        `json:"orderDate"`
}

// createOrder queues a new order and the owning customer's derived-stats
// update. Both ride the coalescer: the order may reach storage before the
// customer document exists, which the upsert semantics absorb.
func (s *Service) createOrder(w http.ResponseWriter, r *http.Request) error {
	var req createOrderRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}
	if !types.ValidID(req.CustomerID) {
		return badRequest("invalid customerId")
	}

	status := req.Status
	if status == "" {
		status = types.OrderPending
	}
	if !types.ValidOrderStatus(status) {
		return badRequest("invalid order status")
	}

	if _, err := s.customers.GetRecord(r.Context(), req.CustomerID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return notFound("customer not found")
		}
		return err
	}

	now := time.Now().UTC()
	orderDate := now
	if req.OrderDate != nil {
		orderDate = req.OrderDate.UTC()
	}

	order := types.Order{
		ID:         types.NewOrderID(),
		CustomerID: types.CustomerID(req.CustomerID),
		Amount:     req.Amount,
		Items:      req.Items,
		Status:     status,
		OrderDate:  orderDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	doc, err := asDoc(order)
	if err != nil {
		return err
	}
	if err := s.coal.Orders.Enqueue(string(order.ID), types.Patch{Doc: doc}); err != nil {
		return err
	}

	// Derived customer stats ride the same flush cycle.
	statsPatch := types.Patch{
		Set: map[string]any{
			"lastActive": orderDate,
			"updatedAt":  now,
		},
		Inc: map[string]float64{
			"totalSpend": req.Amount,
			"visits":     1,
		},
	}
	if err := s.coal.Customers.Enqueue(req.CustomerID, statsPatch); err != nil {
		return err
	}

	return writeJSON(w, http.StatusAccepted, order)
}

// listOrders returns all orders, newest first.
func (s *Service) listOrders(w http.ResponseWriter, r *http.Request) error {
	orders, err := store.List[types.Order](r.Context(), s.orders)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, orders)
}

// getOrder returns one order by id.
func (s *Service) getOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	order, err := store.Get[types.Order](r.Context(), s.orders, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, order)
}

// customerOrders returns all orders belonging to one customer.
func (s *Service) customerOrders(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	orders, err := store.List[types.Order](r.Context(), s.orders)
	if err != nil {
		return err
	}

	owned := make([]types.Order, 0)
	for _, o := range orders {
		if string(o.CustomerID) == id {
			owned = append(owned, o)
		}
	}
	return writeJSON(w, http.StatusOK, owned)
}
