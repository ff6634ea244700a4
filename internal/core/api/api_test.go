package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/batch"
	"github.com/reachpoint/reachpoint/internal/core/auth"
	"github.com/reachpoint/reachpoint/internal/core/db"
	"github.com/reachpoint/reachpoint/internal/delivery"
	"github.com/reachpoint/reachpoint/internal/rules"
	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/types"
)

type testEnv struct {
	service *Service
	server  *httptest.Server
	store   *store.Store
	clock   *clockwork.FakeClock
	token   string
}

type nopSender struct{}

func (nopSender) Send(ctx context.Context, msgID types.MessageID, custID types.CustomerID, message string) error {
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.MigrateUp(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	st, err := store.New(database, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	clock := clockwork.NewFakeClock()
	batchCfg := batch.Config{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		Clock:         clock,
		Logger:        zerolog.Nop(),
	}
	coal := Coalescers{
		Customers: batch.New(st.Collection(store.Customers), batchCfg),
		Orders:    batch.New(st.Collection(store.Orders), batchCfg),
		Segments:  batch.New(st.Collection(store.Segments), batchCfg),
		Campaigns: batch.New(st.Collection(store.Campaigns), batchCfg),
		Messages:  batch.New(st.Collection(store.Messages), batchCfg),
	}

	secret := make([]byte, 32)
	authn := auth.New(secret, time.Hour, zerolog.Nop())
	deliverySvc := delivery.NewService(coal.Messages, nopSender{}, zerolog.Nop())

	service, err := NewService(st, coal, rules.NewEngine(zerolog.Nop()), deliverySvc, nil, authn, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	server := httptest.NewServer(service.Router())
	t.Cleanup(server.Close)

	env := &testEnv{service: service, server: server, store: st, clock: clock}
	env.token = env.registerAccount(t, "tester@example.com")
	return env
}

func (e *testEnv) registerAccount(t *testing.T, email string) string {
	t.Helper()
	body := `{"name":"Tester","email":"` + email + `","password":"hunter2hunter2"}`
	resp, err := http.Post(e.server.URL+"/api/auth/register", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	return session.Token
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.TokenHeader, e.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// flush advances the fake clock past the coalescing window and waits for
// the background flush to land in storage.
func (e *testEnv) flush(t *testing.T, c *store.Collection, wantCount int) {
	t.Helper()
	e.clock.BlockUntil(1)
	e.clock.Advance(6 * time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := c.Count(context.Background())
		if err == nil && n >= wantCount {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("flush did not land %d documents in time", wantCount)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestAPI_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/customers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestAPI_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	// Duplicate email rejected.
	body := `{"name":"Tester","email":"tester@example.com","password":"hunter2hunter2"}`
	resp, _ := http.Post(env.server.URL+"/api/auth/register", "application/json", bytes.NewBufferString(body))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}

	login := `{"email":"tester@example.com","password":"hunter2hunter2"}`
	resp, _ = http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewBufferString(login))
	session := decodeBody[sessionResponse](t, resp)
	if resp.StatusCode != http.StatusOK || session.Token == "" {
		t.Errorf("login status = %d, token %q", resp.StatusCode, session.Token)
	}

	bad := `{"email":"tester@example.com","password":"wrong-password"}`
	resp, _ = http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewBufferString(bad))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", resp.StatusCode)
	}
}

func TestAPI_CustomerIngestionFlow(t *testing.T) {
	env := newTestEnv(t)
	customers := env.store.Collection(store.Customers)

	resp := env.do(t, http.MethodPost, "/api/customers",
		`{"name":"Alice","email":"alice@example.com","totalSpend":120,"visits":3}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d, want 202", resp.StatusCode)
	}
	created := decodeBody[types.Customer](t, resp)
	if created.ID == "" {
		t.Fatal("created customer has no id")
	}

	// Not durable until the window elapses.
	if n, _ := customers.Count(context.Background()); n != 0 {
		t.Errorf("customer count before flush = %d, want 0", n)
	}

	env.flush(t, customers, 1)

	resp = env.do(t, http.MethodGet, "/api/customers/"+string(created.ID), "")
	got := decodeBody[types.Customer](t, resp)
	if resp.StatusCode != http.StatusOK || got.Name != "Alice" {
		t.Errorf("get after flush = %d %+v", resp.StatusCode, got)
	}

	// Duplicate email scan works once durable.
	resp = env.do(t, http.MethodPost, "/api/customers",
		`{"name":"Alice2","email":"ALICE@example.com"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate email status = %d, want 409", resp.StatusCode)
	}
}

func TestAPI_ListCustomersEmptyIs404(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/customers", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty list status = %d, want 404", resp.StatusCode)
	}
}

func TestAPI_SegmentPreview(t *testing.T) {
	env := newTestEnv(t)
	customers := env.store.Collection(store.Customers)

	ctx := context.Background()
	seed := []types.Customer{
		{ID: types.NewCustomerID(), Name: "Big", Email: "big@example.com", TotalSpend: 500, Visits: 10},
		{ID: types.NewCustomerID(), Name: "Small", Email: "small@example.com", TotalSpend: 20, Visits: 1},
	}
	for _, c := range seed {
		if err := customers.Put(ctx, string(c.ID), c); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	resp := env.do(t, http.MethodPost, "/api/segments/preview",
		`{"rules":{"operator":"AND","conditions":[{"field":"totalSpend","operator":">","value":100},{"field":"visits","operator":">=","value":2}]}}`)
	preview := decodeBody[previewResponse](t, resp)
	if resp.StatusCode != http.StatusOK || preview.AudienceSize != 1 {
		t.Errorf("preview = %d, size %d, want 200/1", resp.StatusCode, preview.AudienceSize)
	}

	// Structurally invalid rules rejected.
	resp = env.do(t, http.MethodPost, "/api/segments/preview",
		`{"rules":{"field":"totalSpend","operator":"between","value":1}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid rule status = %d, want 400", resp.StatusCode)
	}
}

func TestAPI_CreateSegmentDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	segments := env.store.Collection(store.Segments)

	body := `{"name":"big spenders","rules":{"field":"totalSpend","operator":">","value":100}}`
	resp := env.do(t, http.MethodPost, "/api/segments", body)
	created := decodeBody[types.Segment](t, resp)
	if resp.StatusCode != http.StatusCreated || created.Name != "big spenders" {
		t.Fatalf("create = %d %+v, want 201", resp.StatusCode, created)
	}
	env.flush(t, segments, 1)

	// Same creator, same name (case-insensitive) is rejected.
	resp = env.do(t, http.MethodPost, "/api/segments",
		`{"name":"Big Spenders","rules":{"field":"visits","operator":">","value":1}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate name status = %d, want 409", resp.StatusCode)
	}
}

func TestAPI_CustomerSegmentMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customers := env.store.Collection(store.Customers)
	segments := env.store.Collection(store.Segments)

	cust := types.Customer{ID: types.NewCustomerID(), Name: "Alice", Email: "a@example.com", TotalSpend: 300}
	if err := customers.Put(ctx, string(cust.ID), cust); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	matching := types.Segment{
		ID:   types.NewSegmentID(),
		Name: "big spenders",
		Rules: &types.RuleNode{
			Field: "totalSpend", Operator: types.OpGt, Value: float64(100),
		},
	}
	other := types.Segment{
		ID:   types.NewSegmentID(),
		Name: "frequent visitors",
		Rules: &types.RuleNode{
			Field: "visits", Operator: types.OpGte, Value: float64(5),
		},
	}
	for _, seg := range []types.Segment{matching, other} {
		if err := segments.Put(ctx, string(seg.ID), seg); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	resp := env.do(t, http.MethodGet, "/api/customers/"+string(cust.ID)+"/segments", "")
	got := decodeBody[[]types.Segment](t, resp)
	if resp.StatusCode != http.StatusOK || len(got) != 1 || got[0].ID != matching.ID {
		t.Errorf("membership = %d %+v, want just %s", resp.StatusCode, got, matching.ID)
	}
}

func TestAPI_OrderCreationUpdatesCustomerStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customers := env.store.Collection(store.Customers)
	orders := env.store.Collection(store.Orders)

	cust := types.Customer{ID: types.NewCustomerID(), Name: "Alice", Email: "a@example.com", TotalSpend: 100, Visits: 1}
	if err := customers.Put(ctx, string(cust.ID), cust); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	resp := env.do(t, http.MethodPost, "/api/orders",
		`{"customerId":"`+string(cust.ID)+`","amount":50}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create order status = %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()

	env.flush(t, orders, 1)

	rec, err := customers.GetRecord(ctx, string(cust.ID))
	if err != nil {
		t.Fatalf("customer read failed: %v", err)
	}
	if rec["totalSpend"] != float64(150) {
		t.Errorf("totalSpend = %v, want 150", rec["totalSpend"])
	}
	if rec["visits"] != float64(2) {
		t.Errorf("visits = %v, want 2", rec["visits"])
	}

	// Unknown customer rejected up front.
	resp = env.do(t, http.MethodPost, "/api/orders",
		`{"customerId":"`+string(types.NewCustomerID())+`","amount":50}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("order for unknown customer status = %d, want 404", resp.StatusCode)
	}
}

func TestAPI_InvalidPathID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/customers/not-a-uuid", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", resp.StatusCode)
	}
}

func TestAPI_SuggestionsUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/campaigns/suggestions", `{"name":"Winter Sale"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unconfigured suggestions status = %d, want 503", resp.StatusCode)
	}
}

func TestAPI_DeliveryReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	messages := env.store.Collection(store.Messages)

	msg := types.MessageLog{
		ID:         types.NewMessageID(),
		CampaignID: types.NewCampaignID(),
		CustomerID: types.NewCustomerID(),
		Message:    "Hi Alice",
		Status:     types.MessagePending,
	}
	if err := messages.Put(ctx, string(msg.ID), msg); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	resp := env.do(t, http.MethodPost, "/api/delivery-receipt",
		`{"communicationLogId":"`+string(msg.ID)+`","status":"SENT"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("receipt status = %d, want 202", resp.StatusCode)
	}

	// Receipts never write campaign counters directly; those derive from
	// the logs when the campaign is read.
	if n := env.service.coal.Campaigns.Len(); n != 0 {
		t.Errorf("campaign writes queued by receipt = %d, want 0", n)
	}

	env.clock.BlockUntil(1)
	env.clock.Advance(6 * time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := messages.GetRecord(ctx, string(msg.ID))
		if err == nil && rec["status"] == string(types.MessageSent) {
			if rec["sentAt"] == nil {
				t.Error("sentAt not set on SENT receipt")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("receipt update never landed")
}
