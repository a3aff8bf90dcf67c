package service

import (
	"context"
	"fmt"
	"strings"

	"siampos/backend/internal/domain"
	"siampos/backend/internal/store"
)

func (s *Service) StockIn(ctx context.Context, req domain.StockInRequest) (domain.StockMovement, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StockMovement{}, fmt.Errorf("%w: authenticated actor required", store.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.ProductID) == "" || req.Quantity < 1 {
		return domain.StockMovement{}, store.ErrInvalidRequest
	}

	entry, err := s.repo.StockIn(ctx, req.ProductID, req.Quantity, actor)
	if err != nil {
		return domain.StockMovement{}, err
	}

	stockMovementsTotal.WithLabelValues("in").Inc()
	s.logActivity(ctx, "stock_in", "product", entry.ProductID, fmt.Sprintf("qty=%d,resulting=%d", entry.Quantity, entry.ResultingStock))
	return *entry, nil
}

func (s *Service) StockOut(ctx context.Context, req domain.StockOutRequest) (domain.StockMovement, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StockMovement{}, fmt.Errorf("%w: authenticated actor required", store.ErrInvalidRequest)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if strings.TrimSpace(req.ProductID) == "" || req.Quantity < 1 || req.Reason == "" {
		return domain.StockMovement{}, store.ErrInvalidRequest
	}

	entry, err := s.repo.StockOut(ctx, req.ProductID, req.Quantity, req.Reason, actor)
	if err != nil {
		return domain.StockMovement{}, err
	}

	stockMovementsTotal.WithLabelValues("out").Inc()
	s.logActivity(ctx, "stock_out", "product", entry.ProductID, fmt.Sprintf("qty=%d,resulting=%d,reason=%s", entry.Quantity, entry.ResultingStock, entry.Reason))
	return *entry, nil
}

func (s *Service) StockAudit(ctx context.Context, req domain.StockAuditRequest) (domain.StockAuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StockAuditLog{}, fmt.Errorf("%w: authenticated actor required", store.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.ProductID) == "" || req.ActualStock < 0 {
		return domain.StockAuditLog{}, store.ErrInvalidRequest
	}

	entry, err := s.repo.StockAudit(ctx, req.ProductID, req.ActualStock, actor)
	if err != nil {
		return domain.StockAuditLog{}, err
	}

	stockMovementsTotal.WithLabelValues("audit").Inc()
	s.logActivity(ctx, "stock_audit", "product", entry.ProductID, fmt.Sprintf("system=%d,actual=%d,delta=%d", entry.SystemStock, entry.ActualStock, entry.Quantity))
	return *entry, nil
}

// StockLogs bundles the three movement ledgers for the history view.
type StockLogs struct {
	Ins    []domain.StockMovement `json:"ins"`
	Outs   []domain.StockMovement `json:"outs"`
	Audits []domain.StockAuditLog `json:"audits"`
}

func (s *Service) ListStockLogs(ctx context.Context, limit int) (StockLogs, error) {
	if limit < 1 {
		limit = 100
	}

	ins, err := s.repo.ListStockIns(ctx, limit)
	if err != nil {
		return StockLogs{}, err
	}
	outs, err := s.repo.ListStockOuts(ctx, limit)
	if err != nil {
		return StockLogs{}, err
	}
	audits, err := s.repo.ListStockAudits(ctx, limit)
	if err != nil {
		return StockLogs{}, err
	}
	return StockLogs{Ins: ins, Outs: outs, Audits: audits}, nil
}
