package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"siampos/backend/internal/domain"
	"siampos/backend/internal/payment"
	"siampos/backend/internal/store"
	"siampos/backend/internal/xid"
)

// ReconciliationError marks a webhook delivery the gateway should retry:
// the event referenced an intent this system cannot settle yet.
type ReconciliationError struct {
	IntentID string
	Reason   string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("cannot reconcile intent %s: %s", e.IntentID, e.Reason)
}

func (s *Service) CreatePaymentIntent(ctx context.Context, method string, req domain.PaymentIntentRequest) (domain.PaymentIntentResponse, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method != domain.PayQR && method != domain.PayCard && method != domain.PayWallet {
		return domain.PaymentIntentResponse{}, fmt.Errorf("%w: unsupported intent method %q", store.ErrInvalidRequest, method)
	}
	if req.Total < 1 {
		return domain.PaymentIntentResponse{}, fmt.Errorf("%w: total must be positive", store.ErrInvalidRequest)
	}
	if req.Draft == nil || len(req.Draft.Items) == 0 {
		return domain.PaymentIntentResponse{}, fmt.Errorf("%w: intent requires sale lines", store.ErrInvalidRequest)
	}
	if err := validateSaleDraft(*req.Draft); err != nil {
		return domain.PaymentIntentResponse{}, err
	}
	if req.Total != req.Draft.Total {
		return domain.PaymentIntentResponse{}, fmt.Errorf("%w: intent total %d does not match draft total %d", store.ErrInvalidRequest, req.Total, req.Draft.Total)
	}

	intent, err := s.gateway.CreateIntent(ctx, method, req.Total, req.Metadata)
	if err != nil {
		return domain.PaymentIntentResponse{}, fmt.Errorf("%w: %v", payment.ErrUnavailable, err)
	}

	actor, _ := ActorFromContext(ctx)
	draft := domain.PendingPaymentDraft{
		PaymentIntentID: intent.IntentID,
		Method:          method,
		CreatedBy:       actor.Username,
		CashierName:     actor.Username,
		Status:          domain.DraftPending,
		Meta:            req.Metadata,
		CreatedAt:       time.Now().UTC(),
	}
	if req.Draft != nil {
		draft.SaleDraft = *req.Draft
	}

	if _, err := s.repo.CreateDraft(ctx, draft); err != nil {
		return domain.PaymentIntentResponse{}, err
	}

	s.logActivity(ctx, "payment_intent_create", "payment_intent", intent.IntentID, fmt.Sprintf("method=%s,total=%d", method, req.Total))
	return domain.PaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.IntentID,
		Status:          intent.Status,
	}, nil
}

// validateSaleDraft holds captured drafts to the same recomputed-totals gate
// Checkout applies to a live cart. A draft that fails here would settle a sale
// whose ledger amounts differ from what the gateway was told to charge.
func validateSaleDraft(draft domain.SaleDraft) error {
	subtotal := int64(0)
	for _, line := range draft.Items {
		if strings.TrimSpace(line.Name) == "" || line.Qty < 1 || line.UnitPrice < 0 {
			return fmt.Errorf("%w: bad cart line %q", store.ErrInvalidRequest, line.Name)
		}
		subtotal += line.UnitPrice * int64(line.Qty)
	}
	if draft.Discount < 0 || draft.VAT < 0 || draft.Discount > subtotal {
		return fmt.Errorf("%w: bad discount or vat", store.ErrInvalidRequest)
	}
	if draft.Subtotal != subtotal {
		return fmt.Errorf("%w: subtotal mismatch: got %d, computed %d", store.ErrInvalidRequest, draft.Subtotal, subtotal)
	}
	if total := subtotal - draft.Discount + draft.VAT; draft.Total != total {
		return fmt.Errorf("%w: total mismatch: got %d, computed %d", store.ErrInvalidRequest, draft.Total, total)
	}
	return nil
}

// HandleGatewayEvent applies one webhook event. Unknown event types are
// acknowledged without effect so the gateway stops redelivering them.
func (s *Service) HandleGatewayEvent(ctx context.Context, event *payment.Event) (*domain.Sale, error) {
	intentID := event.Data.Object.ID
	if intentID == "" {
		webhookEventsTotal.WithLabelValues(event.Type, "invalid").Inc()
		return nil, &ReconciliationError{IntentID: intentID, Reason: "event carries no intent id"}
	}

	switch event.Type {
	case payment.EventIntentSucceeded:
		sale, err := s.reconcile(ctx, intentID, event.Data.Object.Status)
		if err != nil {
			webhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
			return nil, err
		}
		webhookEventsTotal.WithLabelValues(event.Type, "ok").Inc()
		return sale, nil

	case payment.EventIntentProcessing:
		err := s.repo.UpdateDraftStatus(ctx, intentID, domain.DraftPending, map[string]string{
			"gatewayStatus": event.Data.Object.Status,
		})
		if err != nil && !errors.Is(err, store.ErrDraftProcessed) {
			webhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
			return nil, err
		}
		webhookEventsTotal.WithLabelValues(event.Type, "ok").Inc()
		return nil, nil

	case payment.EventIntentFailed:
		err := s.repo.UpdateDraftStatus(ctx, intentID, domain.DraftFailed, map[string]string{
			"gatewayStatus": event.Data.Object.Status,
		})
		if err != nil && !errors.Is(err, store.ErrDraftProcessed) {
			webhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
			return nil, err
		}
		webhookEventsTotal.WithLabelValues(event.Type, "ok").Inc()
		return nil, nil

	default:
		webhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		return nil, nil
	}
}

// reconcile turns a succeeded intent into a Sale exactly once. The cache and
// the by-intent lookup are fast paths; the store's unique index on the intent
// id is what actually guarantees single settlement under concurrent retries.
func (s *Service) reconcile(ctx context.Context, intentID string, gatewayStatus string) (*domain.Sale, error) {
	if saleID, hit, err := s.intents.Get(ctx, intentID); err == nil && hit {
		if sale, err := s.repo.GetSale(ctx, saleID); err == nil {
			return sale, nil
		}
	} else if err != nil {
		slog.Warn("intent cache lookup failed", "intentId", intentID, "err", err)
	}

	if existing, err := s.repo.FindSaleByPaymentIntent(ctx, intentID); err == nil {
		s.rememberIntent(ctx, intentID, existing.ID)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	draft, err := s.repo.GetDraft(ctx, intentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ReconciliationError{IntentID: intentID, Reason: "no pending draft"}
		}
		return nil, err
	}
	if len(draft.SaleDraft.Items) == 0 {
		return nil, &ReconciliationError{IntentID: intentID, Reason: "draft has no sale lines"}
	}

	now := time.Now().UTC()
	items := make([]domain.SaleItem, 0, len(draft.SaleDraft.Items))
	for _, line := range draft.SaleDraft.Items {
		items = append(items, domain.SaleItem{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Qty:       line.Qty,
			LineTotal: line.UnitPrice * int64(line.Qty),
		})
	}

	sale := domain.Sale{
		ID:          xid.New("sale"),
		InvoiceNo:   xid.InvoiceNo(now),
		CreatedBy:   draft.CreatedBy,
		CashierName: draft.CashierName,
		Items:       items,
		Subtotal:    draft.SaleDraft.Subtotal,
		Discount:    draft.SaleDraft.Discount,
		VAT:         draft.SaleDraft.VAT,
		Total:       draft.SaleDraft.Total,
		Payment: domain.Payment{
			Method:         draft.Method,
			AmountReceived: draft.SaleDraft.Total,
			Details: map[string]string{
				domain.MetaPaymentIntentID: intentID,
				"gatewayStatus":            gatewayStatus,
			},
		},
		Status:    domain.SaleCompleted,
		CreatedAt: now,
	}

	created, err := s.repo.SettleDraft(ctx, intentID, sale)
	if err != nil {
		return nil, err
	}

	s.rememberIntent(ctx, intentID, created.ID)
	checkoutsTotal.WithLabelValues(created.Payment.Method).Inc()
	s.logActivity(ctx, "payment_reconcile", "sale", created.ID, fmt.Sprintf("intent=%s,invoice=%s,total=%d", intentID, created.InvoiceNo, created.Total))
	return created, nil
}

func (s *Service) rememberIntent(ctx context.Context, intentID string, saleID string) {
	if err := s.intents.Set(ctx, intentID, saleID, s.intentTTL); err != nil {
		slog.Warn("intent cache write failed", "intentId", intentID, "err", err)
	}
}
