package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"siampos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateInvoice  = errors.New("duplicate invoice number")
	ErrDraftProcessed    = errors.New("draft already processed")
)

// InsufficientStockError carries the live stock level so handlers can return
// it to the client without re-reading the product.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: have %d, want %d", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Repository is the persistence boundary for the sale/stock core. Every
// method that mutates inventory does so atomically: a conditional decrement
// and the record it belongs with either both land or neither does.
type Repository interface {
	// Products
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// Sale ledger. CreateSale validates and decrements stock for every line
	// carrying a product id, then inserts the sale, all in one transaction.
	// A duplicate invoice number returns ErrDuplicateInvoice; a shortfall
	// returns *InsufficientStockError and leaves no stock mutated.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) (domain.SalePage, error)

	// Pending-payment drafts. SettleDraft creates the sale (with stock
	// decrements, as CreateSale) and flips the draft pending→processed in the
	// same transaction; a concurrent settle of the same intent resolves to
	// the already-created sale.
	CreateDraft(ctx context.Context, draft domain.PendingPaymentDraft) (*domain.PendingPaymentDraft, error)
	GetDraft(ctx context.Context, paymentIntentID string) (*domain.PendingPaymentDraft, error)
	UpdateDraftStatus(ctx context.Context, paymentIntentID string, status string, meta map[string]string) error
	SettleDraft(ctx context.Context, paymentIntentID string, sale domain.Sale) (*domain.Sale, error)

	// Stock movements. Each call adjusts product stock and appends its log
	// row in one transaction.
	StockIn(ctx context.Context, productID string, qty int, actor domain.Actor) (*domain.StockMovement, error)
	StockOut(ctx context.Context, productID string, qty int, reason string, actor domain.Actor) (*domain.StockMovement, error)
	StockAudit(ctx context.Context, productID string, actualStock int, actor domain.Actor) (*domain.StockAuditLog, error)
	ListStockIns(ctx context.Context, limit int) ([]domain.StockMovement, error)
	ListStockOuts(ctx context.Context, limit int) ([]domain.StockMovement, error)
	ListStockAudits(ctx context.Context, limit int) ([]domain.StockAuditLog, error)

	// Refund ledger
	CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error)
	GetRefund(ctx context.Context, id string) (*domain.Refund, error)
	ListRefunds(ctx context.Context, limit int) ([]domain.Refund, error)
	RefundedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)
	MarkSaleRefunded(ctx context.Context, saleID string) error

	// Reporting and audit trail
	GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error)
	CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error
	ListActivityLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error)

	// Auth accounts
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
