package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"siampos/backend/internal/domain"
	"siampos/backend/internal/payment"
	"siampos/backend/internal/store"
	"siampos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil, nil, 0)
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "cashier",
		Role:     domain.RoleCashier,
	})
}

func findProduct(t *testing.T, svc *Service, sku string) domain.Product {
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

func cartFor(p domain.Product, qty int) []domain.CartLine {
	id := p.ID
	return []domain.CartLine{
		{ProductID: &id, SKU: p.SKU, Name: p.Name, UnitPrice: p.Price, Qty: qty},
	}
}

func checkoutRequest(p domain.Product, qty int, pay domain.Payment) domain.CheckoutRequest {
	subtotal := p.Price * int64(qty)
	return domain.CheckoutRequest{
		Items:    cartFor(p, qty),
		Subtotal: subtotal,
		Total:    subtotal,
		Payment:  pay,
	}
}

func TestCheckoutCashComputesChangeAndDecrementsStock(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	resp, err := svc.Checkout(ctx, checkoutRequest(cola, 2, domain.Payment{
		Method:         "cash",
		AmountReceived: 100,
	}))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if resp.InvoiceNo == "" {
		t.Fatalf("expected invoice number")
	}
	wantChange := 100 - cola.Price*2
	if resp.Payment.Change != wantChange {
		t.Fatalf("expected change %d, got %d", wantChange, resp.Payment.Change)
	}
	if resp.Sale.Status != domain.SaleCompleted {
		t.Fatalf("expected completed sale, got %s", resp.Sale.Status)
	}

	after, err := svc.GetProduct(ctx, cola.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != cola.Stock-2 {
		t.Fatalf("expected stock %d after sale, got %d", cola.Stock-2, after.Stock)
	}
}

func TestCheckoutRejectsInsufficientCash(t *testing.T) {
	svc := newTestService()
	cola := findProduct(t, svc, "DRK-COLA-01")

	_, err := svc.Checkout(cashierCtx(), checkoutRequest(cola, 2, domain.Payment{
		Method:         "cash",
		AmountReceived: cola.Price, // one can short
	}))
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCheckoutRejectsTotalMismatch(t *testing.T) {
	svc := newTestService()
	cola := findProduct(t, svc, "DRK-COLA-01")

	req := checkoutRequest(cola, 1, domain.Payment{Method: "card"})
	req.Total = req.Total + 5
	_, err := svc.Checkout(cashierCtx(), req)
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for total mismatch, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "total mismatch") {
		t.Fatalf("expected total mismatch detail, got %v", err)
	}
}

func TestCheckoutRejectsUnknownProduct(t *testing.T) {
	svc := newTestService()

	phantom := "prd_does_not_exist"
	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:    []domain.CartLine{{ProductID: &phantom, Name: "Ghost Cola", UnitPrice: 25, Qty: 1}},
		Subtotal: 25,
		Total:    25,
		Payment:  domain.Payment{Method: "cash", AmountReceived: 25},
	})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown cart product must not surface as not found: %v", err)
	}
	if !strings.Contains(err.Error(), "Ghost Cola") {
		t.Fatalf("expected offending line name in error, got %v", err)
	}
}

func TestCheckoutInsufficientStockCarriesAvailable(t *testing.T) {
	svc := newTestService()
	cola := findProduct(t, svc, "DRK-COLA-01")

	_, err := svc.Checkout(cashierCtx(), checkoutRequest(cola, cola.Stock+1, domain.Payment{Method: "card"}))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var shortfall *store.InsufficientStockError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected typed shortfall error, got %v", err)
	}
	if shortfall.Available != cola.Stock || shortfall.Requested != cola.Stock+1 {
		t.Fatalf("unexpected shortfall detail: %+v", shortfall)
	}

	after, err := svc.GetProduct(context.Background(), cola.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != cola.Stock {
		t.Fatalf("failed checkout must not touch stock: %d -> %d", cola.Stock, after.Stock)
	}
}

func TestConcurrentCheckoutsOfLastUnit(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU:          "TST-LAST-01",
		Name:         "Last Unit",
		Price:        50,
		InitialStock: 1,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(ctx, checkoutRequest(product, 1, domain.Payment{Method: "card"}))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winning checkout, got %d", successes)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != 0 {
		t.Fatalf("expected stock 0 after the race, got %d", after.Stock)
	}
}

func succeededEvent(intentID string) *payment.Event {
	event := &payment.Event{ID: "evt-" + intentID, Type: payment.EventIntentSucceeded}
	event.Data.Object.ID = intentID
	event.Data.Object.Status = "succeeded"
	return event
}

func intentDraft(p domain.Product, qty int) *domain.SaleDraft {
	subtotal := p.Price * int64(qty)
	return &domain.SaleDraft{
		Items:    cartFor(p, qty),
		Subtotal: subtotal,
		Total:    subtotal,
	}
}

func TestCreatePaymentIntentRejectsInflatedDraft(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	// one 25-unit line claiming a six-figure total must never reach the gateway
	draft := intentDraft(cola, 1)
	draft.Subtotal = 999999
	draft.Total = 999999
	_, err := svc.CreatePaymentIntent(ctx, "qr", domain.PaymentIntentRequest{
		Total: 1,
		Draft: draft,
	})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for inflated draft, got %v", err)
	}
}

func TestCreatePaymentIntentRejectsTotalDraftMismatch(t *testing.T) {
	svc := newTestService()
	cola := findProduct(t, svc, "DRK-COLA-01")

	draft := intentDraft(cola, 2)
	_, err := svc.CreatePaymentIntent(cashierCtx(), "card", domain.PaymentIntentRequest{
		Total: draft.Total - 1,
		Draft: draft,
	})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for total mismatch, got %v", err)
	}

	if _, err := svc.CreatePaymentIntent(cashierCtx(), "card", domain.PaymentIntentRequest{
		Total: cola.Price,
	}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for missing draft, got %v", err)
	}
}

func TestIntentSettlementIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")
	draft := intentDraft(cola, 3)

	intent, err := svc.CreatePaymentIntent(ctx, "qr", domain.PaymentIntentRequest{
		Total: draft.Total,
		Draft: draft,
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	if intent.ClientSecret == "" || intent.PaymentIntentID == "" {
		t.Fatalf("expected intent secret and id, got %+v", intent)
	}
	if intent.Status != "requires_action" {
		t.Fatalf("expected qr intent to require action, got %s", intent.Status)
	}

	first, err := svc.HandleGatewayEvent(ctx, succeededEvent(intent.PaymentIntentID))
	if err != nil {
		t.Fatalf("first succeeded event failed: %v", err)
	}
	if first == nil || first.Payment.Method != "qr" {
		t.Fatalf("expected a qr sale, got %+v", first)
	}
	if first.PaymentIntentID() != intent.PaymentIntentID {
		t.Fatalf("sale must carry the intent id")
	}

	second, err := svc.HandleGatewayEvent(ctx, succeededEvent(intent.PaymentIntentID))
	if err != nil {
		t.Fatalf("redelivered event failed: %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("redelivery must resolve to the same sale")
	}

	after, err := svc.GetProduct(ctx, cola.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != cola.Stock-3 {
		t.Fatalf("stock must be decremented exactly once: %d -> %d", cola.Stock, after.Stock)
	}
}

func TestProcessingEventKeepsDraftPending(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	intent, err := svc.CreatePaymentIntent(ctx, "wallet", domain.PaymentIntentRequest{
		Total: cola.Price,
		Draft: intentDraft(cola, 1),
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	event := &payment.Event{ID: "evt-processing", Type: payment.EventIntentProcessing}
	event.Data.Object.ID = intent.PaymentIntentID
	event.Data.Object.Status = "processing"
	if _, err := svc.HandleGatewayEvent(ctx, event); err != nil {
		t.Fatalf("processing event failed: %v", err)
	}

	if _, err := svc.GetSaleByPaymentIntent(ctx, intent.PaymentIntentID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("processing must not create a sale, got %v", err)
	}

	// the succeeded event still has a pending draft to settle
	sale, err := svc.HandleGatewayEvent(ctx, succeededEvent(intent.PaymentIntentID))
	if err != nil {
		t.Fatalf("succeeded after processing failed: %v", err)
	}
	if sale == nil {
		t.Fatalf("expected settled sale")
	}
}

func TestFailedEventNeverCreatesSale(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	intent, err := svc.CreatePaymentIntent(ctx, "card", domain.PaymentIntentRequest{
		Total: cola.Price,
		Draft: intentDraft(cola, 1),
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	event := &payment.Event{ID: "evt-failed", Type: payment.EventIntentFailed}
	event.Data.Object.ID = intent.PaymentIntentID
	event.Data.Object.Status = "failed"
	if _, err := svc.HandleGatewayEvent(ctx, event); err != nil {
		t.Fatalf("failed event errored: %v", err)
	}

	if _, err := svc.GetSaleByPaymentIntent(ctx, intent.PaymentIntentID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed intent must not have a sale, got %v", err)
	}

	after, err := svc.GetProduct(ctx, cola.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != cola.Stock {
		t.Fatalf("failed intent must not touch stock: %d -> %d", cola.Stock, after.Stock)
	}
}

func TestLateFailureCannotRevertSettledDraft(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	intent, err := svc.CreatePaymentIntent(ctx, "qr", domain.PaymentIntentRequest{
		Total: cola.Price,
		Draft: intentDraft(cola, 1),
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	sale, err := svc.HandleGatewayEvent(ctx, succeededEvent(intent.PaymentIntentID))
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	event := &payment.Event{ID: "evt-late", Type: payment.EventIntentFailed}
	event.Data.Object.ID = intent.PaymentIntentID
	event.Data.Object.Status = "failed"
	if _, err := svc.HandleGatewayEvent(ctx, event); err != nil {
		t.Fatalf("late failure must be swallowed, got %v", err)
	}

	got, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if got.Status != domain.SaleCompleted {
		t.Fatalf("settled sale must stay completed, got %s", got.Status)
	}
}

func TestSucceededWithoutDraftIsReconciliationError(t *testing.T) {
	svc := newTestService()

	_, err := svc.HandleGatewayEvent(cashierCtx(), succeededEvent("pi_unknown"))
	var recErr *ReconciliationError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected ReconciliationError, got %v", err)
	}
}

func TestReconcileInsufficientStockLeavesDraftPending(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")
	draft := intentDraft(cola, cola.Stock+10)

	intent, err := svc.CreatePaymentIntent(ctx, "qr", domain.PaymentIntentRequest{
		Total: draft.Total,
		Draft: draft,
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	if _, err := svc.HandleGatewayEvent(ctx, succeededEvent(intent.PaymentIntentID)); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock abort, got %v", err)
	}

	if _, err := svc.GetSaleByPaymentIntent(ctx, intent.PaymentIntentID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("aborted reconciliation must not create a sale, got %v", err)
	}

	after, err := svc.GetProduct(ctx, cola.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != cola.Stock {
		t.Fatalf("aborted settlement must not touch stock: %d -> %d", cola.Stock, after.Stock)
	}
}

func TestStockLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{
		Username: "warehouse",
		Role:     domain.RoleWarehouse,
	})
	cola := findProduct(t, svc, "DRK-COLA-01")

	in, err := svc.StockIn(ctx, domain.StockInRequest{ProductID: cola.ID, Quantity: 30})
	if err != nil {
		t.Fatalf("stock in failed: %v", err)
	}
	if in.Quantity != 30 || in.ResultingStock != cola.Stock+30 {
		t.Fatalf("unexpected stock-in movement: %+v", in)
	}

	out, err := svc.StockOut(ctx, domain.StockOutRequest{ProductID: cola.ID, Quantity: 10, Reason: "expired"})
	if err != nil {
		t.Fatalf("stock out failed: %v", err)
	}
	if out.Quantity != 10 || out.ResultingStock != cola.Stock+20 {
		t.Fatalf("unexpected stock-out movement: %+v", out)
	}

	audit, err := svc.StockAudit(ctx, domain.StockAuditRequest{ProductID: cola.ID, ActualStock: 100})
	if err != nil {
		t.Fatalf("stock audit failed: %v", err)
	}
	if audit.SystemStock != cola.Stock+20 || audit.ActualStock != 100 {
		t.Fatalf("unexpected audit log: %+v", audit)
	}

	after, err := svc.GetProduct(ctx, cola.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != 100 {
		t.Fatalf("audit must set stock to the counted value, got %d", after.Stock)
	}

	logs, err := svc.ListStockLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list stock logs failed: %v", err)
	}
	if len(logs.Ins) != 1 || len(logs.Outs) != 1 || len(logs.Audits) != 1 {
		t.Fatalf("expected one entry per log, got %d/%d/%d", len(logs.Ins), len(logs.Outs), len(logs.Audits))
	}
}

func TestStockOutShortfallLeavesStockUntouched(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{
		Username: "warehouse",
		Role:     domain.RoleWarehouse,
	})
	cola := findProduct(t, svc, "DRK-COLA-01")

	_, err := svc.StockOut(ctx, domain.StockOutRequest{
		ProductID: cola.ID,
		Quantity:  cola.Stock + 5,
		Reason:    "damaged",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var shortfall *store.InsufficientStockError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected typed shortfall error, got %v", err)
	}
	if shortfall.Available != cola.Stock || shortfall.Requested != cola.Stock+5 {
		t.Fatalf("unexpected shortfall detail: %+v", shortfall)
	}

	after, err := svc.GetProduct(ctx, cola.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != cola.Stock {
		t.Fatalf("failed stock-out must not touch stock: %d -> %d", cola.Stock, after.Stock)
	}
}

func TestStockOpsRequireActor(t *testing.T) {
	svc := newTestService()
	cola := findProduct(t, svc, "DRK-COLA-01")

	_, err := svc.StockIn(context.Background(), domain.StockInRequest{ProductID: cola.ID, Quantity: 5})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest without an actor, got %v", err)
	}
}

func TestRefundCumulativeCapAndSaleFlip(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	resp, err := svc.Checkout(ctx, checkoutRequest(cola, 3, domain.Payment{Method: "card"}))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	colaID := cola.ID

	first, err := svc.CreateRefund(ctx, domain.RefundRequest{
		SaleID: resp.SaleID,
		Items: []domain.RefundItem{
			{ProductID: &colaID, Name: cola.Name, ReturnQty: 2, Reason: "damaged"},
		},
	})
	if err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	if first.TotalRefund != cola.Price*2 {
		t.Fatalf("expected refund value %d, got %d", cola.Price*2, first.TotalRefund)
	}

	midway, err := svc.GetSale(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if midway.Status != domain.SaleCompleted {
		t.Fatalf("partial refund must not flip the sale, got %s", midway.Status)
	}

	// two of three already returned: another two exceeds what was sold
	_, err = svc.CreateRefund(ctx, domain.RefundRequest{
		SaleID: resp.SaleID,
		Items: []domain.RefundItem{
			{ProductID: &colaID, Name: cola.Name, ReturnQty: 2, Reason: "over"},
		},
	})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected cumulative cap rejection, got %v", err)
	}

	if _, err := svc.CreateRefund(ctx, domain.RefundRequest{
		SaleID: resp.SaleID,
		Items: []domain.RefundItem{
			{ProductID: &colaID, Name: cola.Name, ReturnQty: 1, Reason: "last one"},
		},
	}); err != nil {
		t.Fatalf("final refund failed: %v", err)
	}

	final, err := svc.GetSale(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if final.Status != domain.SaleRefunded {
		t.Fatalf("fully refunded sale must flip to refunded, got %s", final.Status)
	}
}

func TestRefundFlipsVATSaleWhenAllUnitsReturned(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	req := checkoutRequest(cola, 2, domain.Payment{Method: "card"})
	req.VAT = 7
	req.Total += 7
	resp, err := svc.Checkout(ctx, req)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	colaID := cola.ID
	if _, err := svc.CreateRefund(ctx, domain.RefundRequest{
		SaleID: resp.SaleID,
		Items: []domain.RefundItem{
			{ProductID: &colaID, Name: cola.Name, ReturnQty: 2, Reason: "returned"},
		},
	}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	final, err := svc.GetSale(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if final.Status != domain.SaleRefunded {
		t.Fatalf("sale with vat must still flip once every unit is returned, got %s", final.Status)
	}
}

func TestRefundRejectsMismatchedInvoice(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")

	resp, err := svc.Checkout(ctx, checkoutRequest(cola, 1, domain.Payment{Method: "card"}))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	colaID := cola.ID

	_, err = svc.CreateRefund(ctx, domain.RefundRequest{
		SaleID:    resp.SaleID,
		InvoiceNo: "not-the-invoice",
		Items: []domain.RefundItem{
			{ProductID: &colaID, Name: cola.Name, ReturnQty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invoice mismatch rejection, got %v", err)
	}
}

func TestDailyReportAggregatesSalesAndRefunds(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cola := findProduct(t, svc, "DRK-COLA-01")
	water := findProduct(t, svc, "DRK-WATER-01")

	if _, err := svc.Checkout(ctx, checkoutRequest(cola, 2, domain.Payment{Method: "card"})); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	resp, err := svc.Checkout(ctx, checkoutRequest(water, 1, domain.Payment{Method: "cash", AmountReceived: water.Price}))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	waterID := water.ID
	if _, err := svc.CreateRefund(ctx, domain.RefundRequest{
		SaleID: resp.SaleID,
		Items: []domain.RefundItem{
			{ProductID: &waterID, Name: water.Name, ReturnQty: 1, Reason: "return"},
		},
	}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	report, err := svc.DailyReport(ctx, "")
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.Sales != 2 {
		t.Fatalf("expected 2 sales, got %d", report.Sales)
	}
	wantGross := cola.Price*2 + water.Price
	if report.GrossTotal != wantGross {
		t.Fatalf("expected gross %d, got %d", wantGross, report.GrossTotal)
	}
	if report.RefundTotal != water.Price {
		t.Fatalf("expected refund total %d, got %d", water.Price, report.RefundTotal)
	}
	if len(report.ByPayment) != 2 {
		t.Fatalf("expected two payment buckets, got %d", len(report.ByPayment))
	}
}

func TestAuthenticateSeededAccounts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	actor, err := svc.Authenticate(ctx, "Admin", "admin123")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	if _, err := svc.Authenticate(ctx, "admin", "wrong-password"); err == nil {
		t.Fatalf("expected bad password to be rejected")
	}
}
