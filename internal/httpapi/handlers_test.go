package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"siampos/backend/internal/domain"
	"siampos/backend/internal/payment"
	"siampos/backend/internal/service"
	"siampos/backend/internal/store/memory"
)

const testWebhookSecret = "whsec_test_secret"

// newTestAPI builds a full API over an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *service.Service) {
	t.Helper()

	svc := service.New(memory.NewSeeded(), nil, nil, 0)
	auth := NewAuthManager("test-secret-key", time.Hour, svc)

	api := New(svc, auth, Options{
		WebhookSecret:  testWebhookSecret,
		LoginRateLimit: 5,
	})
	return api, svc
}

func loginToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func authedRequest(t *testing.T, method, target, token string, body any) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func seededProduct(t *testing.T, svc *service.Service, sku string) domain.Product {
	t.Helper()
	products, err := svc.ListProducts(context.Background(), false)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	for _, p := range products {
		if p.SKU == sku {
			return p
		}
	}
	t.Fatalf("seeded product %s not found", sku)
	return domain.Product{}
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestSalesRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Router()
	token := loginToken(t, handler, "cashier", "cashier123")
	cola := seededProduct(t, svc, "DRK-COLA-01")

	body := domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: &cola.ID, SKU: cola.SKU, Name: cola.Name, UnitPrice: cola.Price, Qty: 2},
		},
		Subtotal: cola.Price * 2,
		Total:    cola.Price * 2,
		Payment:  domain.Payment{Method: "cash", AmountReceived: cola.Price * 2},
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/sales", token, body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SaleID == "" || resp.InvoiceNo == "" {
		t.Fatalf("expected sale id and invoice, got %+v", resp)
	}

	// the created sale is retrievable
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, authedRequest(t, http.MethodGet, "/api/v1/sales/"+resp.SaleID, token, nil))
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d", getRec.Code)
	}
}

func TestCheckoutInsufficientStockPayload(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Router()
	token := loginToken(t, handler, "cashier", "cashier123")
	cola := seededProduct(t, svc, "DRK-COLA-01")

	qty := cola.Stock + 5
	body := domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: &cola.ID, SKU: cola.SKU, Name: cola.Name, UnitPrice: cola.Price, Qty: qty},
		},
		Subtotal: cola.Price * int64(qty),
		Total:    cola.Price * int64(qty),
		Payment:  domain.Payment{Method: "card"},
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/sales", token, body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["currentStock"] != float64(cola.Stock) {
		t.Fatalf("expected currentStock %d in payload, got %v", cola.Stock, resp["currentStock"])
	}
}

func TestCashierCannotMoveStock(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Router()
	token := loginToken(t, handler, "cashier", "cashier123")
	cola := seededProduct(t, svc, "DRK-COLA-01")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/stock/in", token, domain.StockInRequest{
		ProductID: cola.ID,
		Quantity:  10,
	}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier stock-in, got %d", rec.Code)
	}
}

func TestWarehouseStockIn(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Router()
	token := loginToken(t, handler, "warehouse", "warehouse123")
	cola := seededProduct(t, svc, "DRK-COLA-01")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/stock/in", token, domain.StockInRequest{
		ProductID: cola.ID,
		Quantity:  12,
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Movement domain.StockMovement `json:"movement"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Movement.ResultingStock != cola.Stock+12 {
		t.Fatalf("expected resulting stock %d, got %d", cola.Stock+12, resp.Movement.ResultingStock)
	}
}

func signedWebhookRequest(t *testing.T, event map[string]any) *http.Request {
	t.Helper()

	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.SignatureHeader, payment.Sign(payload, testWebhookSecret, time.Now()))
	return req
}

func TestWebhookSettlesIntent(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Router()
	cola := seededProduct(t, svc, "DRK-COLA-01")

	ctx := service.WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
	colaID := cola.ID
	intent, err := svc.CreatePaymentIntent(ctx, "qr", domain.PaymentIntentRequest{
		Total: cola.Price,
		Draft: &domain.SaleDraft{
			Items: []domain.CartLine{
				{ProductID: &colaID, SKU: cola.SKU, Name: cola.Name, UnitPrice: cola.Price, Qty: 1},
			},
			Subtotal: cola.Price,
			Total:    cola.Price,
		},
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, map[string]any{
		"id":   "evt_1",
		"type": payment.EventIntentSucceeded,
		"data": map[string]any{
			"object": map[string]any{"id": intent.PaymentIntentID, "status": "succeeded"},
		},
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["saleId"] == nil || resp["saleId"] == "" {
		t.Fatalf("expected settled sale id, got %v", resp)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()

	payload := []byte(`{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"id":"pi_x","status":"succeeded"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set(payment.SignatureHeader, fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad signature, got %d", rec.Code)
	}
}

func TestWebhookUnknownIntentReturns400(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, map[string]any{
		"id":   "evt_3",
		"type": payment.EventIntentSucceeded,
		"data": map[string]any{
			"object": map[string]any{"id": "pi_never_created", "status": "succeeded"},
		},
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown intent, got %d", rec.Code)
	}
}

func TestDailyReportCSVFormat(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()
	token := loginToken(t, handler, "admin", "admin123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/reports/daily?format=csv", token, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("expected csv content type, got %q", ct)
	}
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Router()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/users", token, nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier listing users, got %d", rec.Code)
	}
}
