// Package api provides the HTTP service implementation for the reachpoint
// CRM API.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/batch"
	"github.com/reachpoint/reachpoint/internal/core/auth"
	"github.com/reachpoint/reachpoint/internal/delivery"
	"github.com/reachpoint/reachpoint/internal/rules"
	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/suggest"
)

// Coalescers bundles the per-collection write coalescers the handlers
// enqueue into.
type Coalescers struct {
	Customers *batch.Coalescer
	Orders    *batch.Coalescer
	Segments  *batch.Coalescer
	Campaigns *batch.Coalescer
	Messages  *batch.Coalescer
}

// Service implements the HTTP API. Thin orchestration layer delegating to
// the store, rule engine, coalescers, and delivery packages.
type Service struct {
	store *store.Store

	customers *store.Collection
	orders    *store.Collection
	segments  *store.Collection
	campaigns *store.Collection
	messages  *store.Collection

	coal     Coalescers
	engine   *rules.Engine
	delivery *delivery.Service
	suggest  suggest.Client
	auth     *auth.Authenticator
	validate *validator.Validate
	log      zerolog.Logger
}

// NewService creates the service instance with dependencies.
func NewService(
	st *store.Store,
	coal Coalescers,
	engine *rules.Engine,
	deliv *delivery.Service,
	sugg suggest.Client,
	authn *auth.Authenticator,
	log zerolog.Logger,
) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if authn == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}

	return &Service{
		store:     st,
		customers: st.Collection(store.Customers),
		orders:    st.Collection(store.Orders),
		segments:  st.Collection(store.Segments),
		campaigns: st.Collection(store.Campaigns),
		messages:  st.Collection(store.Messages),
		coal:      coal,
		engine:    engine,
		delivery:  deliv,
		suggest:   sugg,
		auth:      authn,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log.With().Str("component", "api").Logger(),
	}, nil
}

// Router builds the HTTP route table. Auth endpoints and the health check
// are open; everything else sits behind the token middleware.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handle(s.health)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.handle(s.register)).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handle(s.login)).Methods(http.MethodPost)

	priv := api.NewRoute().Subrouter()
	priv.Use(s.auth.Middleware)

	priv.HandleFunc("/auth/me", s.handle(s.currentUser)).Methods(http.MethodGet)

	priv.HandleFunc("/customers", s.handle(s.createCustomer)).Methods(http.MethodPost)
	priv.HandleFunc("/customers", s.handle(s.listCustomers)).Methods(http.MethodGet)
	priv.HandleFunc("/customers/{id}", s.handle(s.getCustomer)).Methods(http.MethodGet)
	priv.HandleFunc("/customers/{id}/segments", s.handle(s.customerSegments)).Methods(http.MethodGet)

	priv.HandleFunc("/orders", s.handle(s.createOrder)).Methods(http.MethodPost)
	priv.HandleFunc("/orders", s.handle(s.listOrders)).Methods(http.MethodGet)
	priv.HandleFunc("/orders/{id}", s.handle(s.getOrder)).Methods(http.MethodGet)
	priv.HandleFunc("/customers/{id}/orders", s.handle(s.customerOrders)).Methods(http.MethodGet)

	priv.HandleFunc("/segments", s.handle(s.createSegment)).Methods(http.MethodPost)
	priv.HandleFunc("/segments", s.handle(s.listSegments)).Methods(http.MethodGet)
	priv.HandleFunc("/segments/preview", s.handle(s.previewSegment)).Methods(http.MethodPost)
	priv.HandleFunc("/segments/{id}", s.handle(s.getSegment)).Methods(http.MethodGet)
	priv.HandleFunc("/segments/{id}", s.handle(s.updateSegment)).Methods(http.MethodPut)
	priv.HandleFunc("/segments/{id}", s.handle(s.deleteSegment)).Methods(http.MethodDelete)

	priv.HandleFunc("/campaigns", s.handle(s.createCampaign)).Methods(http.MethodPost)
	priv.HandleFunc("/campaigns", s.handle(s.listCampaigns)).Methods(http.MethodGet)
	priv.HandleFunc("/campaigns/suggestions", s.handle(s.suggestMessages)).Methods(http.MethodPost)
	priv.HandleFunc("/campaigns/{id}", s.handle(s.getCampaign)).Methods(http.MethodGet)
	priv.HandleFunc("/campaigns/{id}", s.handle(s.updateCampaign)).Methods(http.MethodPut)
	priv.HandleFunc("/campaigns/{id}", s.handle(s.deleteCampaign)).Methods(http.MethodDelete)

	priv.HandleFunc("/messages", s.handle(s.listMessages)).Methods(http.MethodGet)
	priv.HandleFunc("/delivery-receipt", s.handle(s.deliveryReceipt)).Methods(http.MethodPost)

	return r
}

// health reports liveness plus database reachability.
func (s *Service) health(w http.ResponseWriter, r *http.Request) error {
	if _, err := s.customers.Count(r.Context()); err != nil {
		return writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
