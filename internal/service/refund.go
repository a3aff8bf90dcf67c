package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"siampos/backend/internal/domain"
	"siampos/backend/internal/store"
	"siampos/backend/internal/xid"
)

// refundLineKey matches the key the store uses when summing refunded
// quantities: the product id when the line has one, otherwise the line name.
func refundLineKey(productID *string, name string) string {
	if productID != nil && *productID != "" {
		return *productID
	}
	return "name:" + name
}

func (s *Service) CreateRefund(ctx context.Context, req domain.RefundRequest) (*domain.Refund, error) {
	if strings.TrimSpace(req.SaleID) == "" {
		return nil, fmt.Errorf("%w: saleId is required", store.ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: refund requires at least one item", store.ErrInvalidRequest)
	}

	sale, err := s.repo.GetSale(ctx, req.SaleID)
	if err != nil {
		return nil, err
	}
	if req.InvoiceNo != "" && req.InvoiceNo != sale.InvoiceNo {
		return nil, fmt.Errorf("%w: invoiceNo does not match sale %s", store.ErrInvalidRequest, sale.ID)
	}
	s.backfillUnitPrices(ctx, sale)

	soldByKey := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		key := refundLineKey(item.ProductID, item.Name)
		agg := soldByKey[key]
		agg.ProductID = item.ProductID
		agg.Name = item.Name
		agg.UnitPrice = item.UnitPrice
		agg.Qty += item.Qty
		soldByKey[key] = agg
	}

	refundedByKey, err := s.repo.RefundedQtyBySale(ctx, sale.ID)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]int, len(req.Items))
	items := make([]domain.RefundItem, 0, len(req.Items))
	var totalRefund int64
	for i, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" && (item.ProductID == nil || *item.ProductID == "") {
			return nil, fmt.Errorf("%w: refund item %d has no product reference", store.ErrInvalidRequest, i)
		}
		if item.ReturnQty < 1 {
			return nil, fmt.Errorf("%w: refund item %d returnQty must be at least 1", store.ErrInvalidRequest, i)
		}

		key := refundLineKey(item.ProductID, item.Name)
		sold, ok := soldByKey[key]
		if !ok {
			return nil, fmt.Errorf("%w: item %q was not part of sale %s", store.ErrInvalidRequest, item.Name, sale.ID)
		}
		requested[key] += item.ReturnQty
		if already := refundedByKey[key]; already+requested[key] > sold.Qty {
			return nil, fmt.Errorf("%w: item %q exceeds refundable quantity (sold %d, already refunded %d)",
				store.ErrInvalidRequest, sold.Name, sold.Qty, already)
		}

		line := domain.RefundItem{
			ProductID:   sold.ProductID,
			Name:        sold.Name,
			UnitPrice:   sold.UnitPrice,
			OriginalQty: sold.Qty,
			ReturnQty:   item.ReturnQty,
			Reason:      strings.TrimSpace(item.Reason),
			LineRefund:  sold.UnitPrice * int64(item.ReturnQty),
		}
		totalRefund += line.LineRefund
		items = append(items, line)
	}

	actor, _ := ActorFromContext(ctx)
	refund := domain.Refund{
		ID:          xid.New("refund"),
		SaleID:      sale.ID,
		InvoiceNo:   sale.InvoiceNo,
		RefundedBy:  actor.Username,
		Items:       items,
		TotalRefund: totalRefund,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.repo.CreateRefund(ctx, refund)
	if err != nil {
		return nil, err
	}
	refundsTotal.Inc()

	if sale.Status != domain.SaleRefunded && s.saleFullyRefunded(sale, refundedByKey, requested) {
		if err := s.repo.MarkSaleRefunded(ctx, sale.ID); err != nil {
			slog.Warn("failed to mark sale refunded", "saleId", sale.ID, "err", err)
		}
	}

	s.logActivity(ctx, "refund_create", "refund", created.ID, fmt.Sprintf("sale=%s,invoice=%s,total=%d", sale.ID, sale.InvoiceNo, totalRefund))
	return created, nil
}

// saleFullyRefunded reports whether the refunded value, capped per line at the
// quantity sold, has reached the sale's line value. The comparison is against
// the subtotal, not sale.Total: discount and VAT adjust what the customer
// paid, not what was sold, so a fully returned sale must flip either way.
func (s *Service) saleFullyRefunded(sale *domain.Sale, before map[string]int, added map[string]int) bool {
	soldByKey := make(map[string]int, len(sale.Items))
	priceByKey := make(map[string]int64, len(sale.Items))
	for _, item := range sale.Items {
		key := refundLineKey(item.ProductID, item.Name)
		soldByKey[key] += item.Qty
		priceByKey[key] = item.UnitPrice
	}
	var value int64
	var subtotal int64
	for key, soldQty := range soldByKey {
		qty := before[key] + added[key]
		if qty > soldQty {
			qty = soldQty
		}
		value += priceByKey[key] * int64(qty)
		subtotal += priceByKey[key] * int64(soldQty)
	}
	return subtotal > 0 && value >= subtotal
}

func (s *Service) GetRefund(ctx context.Context, id string) (*domain.Refund, error) {
	return s.repo.GetRefund(ctx, id)
}

func (s *Service) ListRefunds(ctx context.Context, limit int) ([]domain.Refund, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListRefunds(ctx, limit)
}
