package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"siampos/backend/internal/domain"
	"siampos/backend/internal/store"
	"siampos/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	productsByID  map[string]domain.Product
	skuIndex      map[string]string
	salesByID     map[string]domain.Sale
	invoiceIndex  map[string]string
	intentIndex   map[string]string
	draftsByID    map[string]domain.PendingPaymentDraft
	stockIns      []domain.StockMovement
	stockOuts     []domain.StockMovement
	stockAudits   []domain.StockAuditLog
	refundsByID   map[string]domain.Refund
	refundOrder   []string
	activityLogs  []domain.ActivityLog
	usersByName   map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		productsByID: make(map[string]domain.Product),
		skuIndex:     make(map[string]string),
		salesByID:    make(map[string]domain.Sale),
		invoiceIndex: make(map[string]string),
		intentIndex:  make(map[string]string),
		draftsByID:   make(map[string]domain.PendingPaymentDraft),
		refundsByID:  make(map[string]domain.Refund),
		usersByName:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a small catalog and the two
// bootstrap accounts, for dev mode and tests.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []domain.Product{
		{SKU: "DRK-COLA-01", Name: "Cola 325ml", Price: 25, Cost: 17, Stock: 120, ReorderLevel: 24, Category: "beverage", Unit: "can"},
		{SKU: "DRK-WATER-01", Name: "Drinking Water 600ml", Price: 10, Cost: 6, Stock: 200, ReorderLevel: 48, Category: "beverage", Unit: "bottle"},
		{SKU: "SNK-CHIPS-01", Name: "Potato Chips", Price: 35, Cost: 24, Stock: 80, ReorderLevel: 12, Category: "snack", Unit: "bag"},
		{SKU: "SNK-PEANUT-01", Name: "Roasted Peanuts", Price: 20, Cost: 13, Stock: 60, ReorderLevel: 12, Category: "snack", Unit: "pack"},
		{SKU: "GRC-RICE-01", Name: "Jasmine Rice 5kg", Price: 185, Cost: 152, Stock: 30, ReorderLevel: 6, Category: "grocery", Unit: "bag"},
		{SKU: "GRC-EGG-01", Name: "Eggs 10pcs", Price: 55, Cost: 44, Stock: 45, ReorderLevel: 10, Category: "grocery", Unit: "tray"},
		{SKU: "HSH-SOAP-01", Name: "Bar Soap", Price: 18, Cost: 11, Stock: 90, ReorderLevel: 18, Category: "household", Unit: "bar"},
		{SKU: "HSH-DETERGENT-01", Name: "Detergent 900g", Price: 65, Cost: 48, Stock: 40, ReorderLevel: 8, Category: "household", Unit: "pack"},
	}
	for _, p := range seed {
		p.ID = xid.New("prd")
		p.Status = domain.ProductActive
		p.CreatedAt = now
		p.UpdatedAt = now
		s.productsByID[p.ID] = p
		s.skuIndex[p.SKU] = p.ID
	}
	s.usersByName = seedUsers()
	return s
}

// seedUsers builds the bootstrap accounts for dev/demo mode. Credentials come
// from SEED_ADMIN_PASSWORD / SEED_CASHIER_PASSWORD / SEED_WAREHOUSE_PASSWORD;
// unset variables fall back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	defaults := []struct {
		username string
		envKey   string
		fallback string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"cashier", "SEED_CASHIER_PASSWORD", "cashier123", domain.RoleCashier},
		{"warehouse", "SEED_WAREHOUSE_PASSWORD", "warehouse123", domain.RoleWarehouse},
	}

	now := time.Now().UTC()
	users := make(map[string]domain.UserAccount, len(defaults))
	for _, u := range defaults {
		pwd := os.Getenv(u.envKey)
		if pwd == "" {
			pwd = u.fallback
			slog.Warn("using default dev credentials", "username", u.username, "override", u.envKey)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("failed to hash seed password", "username", u.username, "err", err)
			os.Exit(1)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

// ---- products ----

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Price < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.skuIndex[product.SKU]; exists {
		return nil, store.ErrInvalidRequest
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Status == "" {
		product.Status = domain.ProductActive
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.productsByID[product.ID] = product
	s.skuIndex[product.SKU] = product.ID
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.skuIndex[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := s.productsByID[id]
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !includeInactive && p.Status != domain.ProductActive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidRequest
	}
	// Stock is owned by the movement engines; carry the stored value through.
	product.SKU = existing.SKU
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.productsByID, id)
	delete(s.skuIndex, product.SKU)
	return nil
}

// ---- sale ledger ----

// applyDecrements validates and applies stock decrements for every cart line
// carrying a product id. Caller must hold the write lock. On any shortfall
// nothing is mutated.
func (s *Store) applyDecrements(items []domain.SaleItem) error {
	type pending struct {
		id  string
		qty int
	}
	planned := make([]pending, 0, len(items))
	need := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		id := *item.ProductID
		product, exists := s.productsByID[id]
		if !exists {
			return fmt.Errorf("%w: invalid product %s", store.ErrInvalidRequest, item.Name)
		}
		need[id] += item.Qty
		if product.Stock < need[id] {
			return &store.InsufficientStockError{
				ProductID: id,
				Name:      product.Name,
				Available: product.Stock,
				Requested: need[id],
			}
		}
		planned = append(planned, pending{id: id, qty: item.Qty})
	}
	now := time.Now().UTC()
	for _, p := range planned {
		product := s.productsByID[p.id]
		product.Stock -= p.qty
		product.UpdatedAt = now
		s.productsByID[p.id] = product
	}
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSaleLocked(sale)
}

func (s *Store) createSaleLocked(sale domain.Sale) (*domain.Sale, error) {
	if sale.InvoiceNo == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.invoiceIndex[sale.InvoiceNo]; exists {
		return nil, store.ErrDuplicateInvoice
	}
	if intent := sale.PaymentIntentID(); intent != "" {
		if existingID, exists := s.intentIndex[intent]; exists {
			existing := s.salesByID[existingID]
			return &existing, nil
		}
	}
	if err := s.applyDecrements(sale.Items); err != nil {
		return nil, err
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Status == "" {
		sale.Status = domain.SaleCompleted
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	s.invoiceIndex[sale.InvoiceNo] = sale.ID
	if intent := sale.PaymentIntentID(); intent != "" {
		s.intentIndex[intent] = sale.ID
	}
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneSale(sale)
	return &copied, nil
}

func (s *Store) FindSaleByPaymentIntent(_ context.Context, paymentIntentID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.intentIndex[paymentIntentID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneSale(s.salesByID[id])
	return &copied, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) (domain.SalePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !saleMatches(sale, filter) {
			continue
		}
		matched = append(matched, cloneSale(sale))
	}
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return domain.SalePage{Rows: matched[start:end], Total: total, Page: page, Limit: limit}, nil
}

func saleMatches(sale domain.Sale, filter domain.SaleFilter) bool {
	if filter.Receipt != "" && !strings.Contains(strings.ToLower(sale.InvoiceNo), strings.ToLower(filter.Receipt)) {
		return false
	}
	if filter.FromDate != nil && sale.CreatedAt.Before(*filter.FromDate) {
		return false
	}
	if filter.ToDate != nil && !sale.CreatedAt.Before(*filter.ToDate) {
		return false
	}
	if filter.Product != "" {
		found := false
		needle := strings.ToLower(filter.Product)
		for _, item := range sale.Items {
			if strings.Contains(strings.ToLower(item.Name), needle) || strings.Contains(strings.ToLower(item.SKU), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Query != "" {
		needle := strings.ToLower(filter.Query)
		hay := strings.ToLower(sale.InvoiceNo + " " + sale.CashierName + " " + sale.Payment.Method)
		found := strings.Contains(hay, needle)
		for _, item := range sale.Items {
			if found {
				break
			}
			found = strings.Contains(strings.ToLower(item.Name), needle)
		}
		if !found {
			return false
		}
	}
	return true
}

// ---- pending-payment drafts ----

func (s *Store) CreateDraft(_ context.Context, draft domain.PendingPaymentDraft) (*domain.PendingPaymentDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.PaymentIntentID == "" {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.draftsByID[draft.PaymentIntentID]; exists {
		return nil, store.ErrInvalidRequest
	}
	if draft.Status == "" {
		draft.Status = domain.DraftPending
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}
	s.draftsByID[draft.PaymentIntentID] = cloneDraft(draft)
	created := cloneDraft(draft)
	return &created, nil
}

func (s *Store) GetDraft(_ context.Context, paymentIntentID string) (*domain.PendingPaymentDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, exists := s.draftsByID[paymentIntentID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneDraft(draft)
	return &copied, nil
}

func (s *Store) UpdateDraftStatus(_ context.Context, paymentIntentID string, status string, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, exists := s.draftsByID[paymentIntentID]
	if !exists {
		return store.ErrNotFound
	}
	// A settled draft never reverts.
	if draft.Status == domain.DraftProcessed {
		return store.ErrDraftProcessed
	}
	draft.Status = status
	if len(meta) > 0 {
		if draft.Meta == nil {
			draft.Meta = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			draft.Meta[k] = v
		}
	}
	s.draftsByID[paymentIntentID] = draft
	return nil
}

func (s *Store) SettleDraft(_ context.Context, paymentIntentID string, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, exists := s.intentIndex[paymentIntentID]; exists {
		existing := cloneSale(s.salesByID[existingID])
		return &existing, nil
	}
	draft, exists := s.draftsByID[paymentIntentID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if draft.Status == domain.DraftProcessed {
		// Processed but no indexed sale: resolve via payment details scan.
		for _, candidate := range s.salesByID {
			if candidate.PaymentIntentID() == paymentIntentID {
				copied := cloneSale(candidate)
				return &copied, nil
			}
		}
		return nil, store.ErrDraftProcessed
	}

	created, err := s.createSaleLocked(sale)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	draft.Status = domain.DraftProcessed
	draft.ProcessedAt = &now
	s.draftsByID[paymentIntentID] = draft
	return created, nil
}

// ---- stock movements ----

func (s *Store) StockIn(_ context.Context, productID string, qty int, actor domain.Actor) (*domain.StockMovement, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Stock += qty
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = product

	entry := domain.StockMovement{
		ID:             xid.New("stkin"),
		ProductID:      productID,
		SKU:            product.SKU,
		Name:           product.Name,
		Quantity:       qty,
		ResultingStock: product.Stock,
		ActorUsername:  actor.Username,
		ActorRole:      actor.Role,
		CreatedAt:      time.Now().UTC(),
	}
	s.stockIns = append(s.stockIns, entry)
	created := entry
	return &created, nil
}

func (s *Store) StockOut(_ context.Context, productID string, qty int, reason string, actor domain.Actor) (*domain.StockMovement, error) {
	if qty < 1 || strings.TrimSpace(reason) == "" {
		return nil, store.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Stock < qty {
		return nil, &store.InsufficientStockError{
			ProductID: productID,
			Name:      product.Name,
			Available: product.Stock,
			Requested: qty,
		}
	}
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = product

	entry := domain.StockMovement{
		ID:             xid.New("stkout"),
		ProductID:      productID,
		SKU:            product.SKU,
		Name:           product.Name,
		Quantity:       qty,
		ResultingStock: product.Stock,
		Reason:         reason,
		ActorUsername:  actor.Username,
		ActorRole:      actor.Role,
		CreatedAt:      time.Now().UTC(),
	}
	s.stockOuts = append(s.stockOuts, entry)
	created := entry
	return &created, nil
}

func (s *Store) StockAudit(_ context.Context, productID string, actualStock int, actor domain.Actor) (*domain.StockAuditLog, error) {
	if actualStock < 0 {
		return nil, store.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	systemStock := product.Stock
	product.Stock = actualStock
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = product

	entry := domain.StockAuditLog{
		ID:            xid.New("stkaud"),
		ProductID:     productID,
		SKU:           product.SKU,
		Name:          product.Name,
		SystemStock:   systemStock,
		ActualStock:   actualStock,
		Quantity:      actualStock - systemStock,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		CreatedAt:     time.Now().UTC(),
	}
	s.stockAudits = append(s.stockAudits, entry)
	created := entry
	return &created, nil
}

func (s *Store) ListStockIns(_ context.Context, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastMovements(s.stockIns, limit), nil
}

func (s *Store) ListStockOuts(_ context.Context, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastMovements(s.stockOuts, limit), nil
}

func (s *Store) ListStockAudits(_ context.Context, limit int) ([]domain.StockAuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	n := len(s.stockAudits)
	start := 0
	if n > limit {
		start = n - limit
	}
	result := make([]domain.StockAuditLog, n-start)
	copy(result, s.stockAudits[start:])
	slices.Reverse(result)
	return result, nil
}

func lastMovements(entries []domain.StockMovement, limit int) []domain.StockMovement {
	if limit < 1 {
		limit = 100
	}
	n := len(entries)
	start := 0
	if n > limit {
		start = n - limit
	}
	result := make([]domain.StockMovement, n-start)
	copy(result, entries[start:])
	slices.Reverse(result)
	return result
}

// ---- refunds ----

func (s *Store) CreateRefund(_ context.Context, refund domain.Refund) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if refund.SaleID == "" || len(refund.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.salesByID[refund.SaleID]; !exists {
		return nil, store.ErrNotFound
	}
	if refund.ID == "" {
		refund.ID = xid.New("rfd")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	s.refundsByID[refund.ID] = cloneRefund(refund)
	s.refundOrder = append(s.refundOrder, refund.ID)
	created := cloneRefund(refund)
	return &created, nil
}

func (s *Store) GetRefund(_ context.Context, id string) (*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refund, exists := s.refundsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneRefund(refund)
	return &copied, nil
}

func (s *Store) ListRefunds(_ context.Context, limit int) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Refund, 0, limit)
	for i := len(s.refundOrder) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, cloneRefund(s.refundsByID[s.refundOrder[i]]))
	}
	return result, nil
}

func (s *Store) RefundedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int)
	for _, refund := range s.refundsByID {
		if refund.SaleID != saleID {
			continue
		}
		for _, item := range refund.Items {
			totals[refundLineKey(item.ProductID, item.Name)] += item.ReturnQty
		}
	}
	return totals, nil
}

func refundLineKey(productID *string, name string) string {
	if productID != nil && *productID != "" {
		return *productID
	}
	return "name:" + name
}

func (s *Store) MarkSaleRefunded(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return store.ErrNotFound
	}
	sale.Status = domain.SaleRefunded
	s.salesByID[saleID] = sale
	return nil
}

// ---- reporting / audit trail ----

func (s *Store) GetDailyReport(_ context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{Date: from.Format("2006-01-02")}
	byPayment := make(map[string]*domain.DailyReportPayment)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.Sales++
		report.GrossTotal += sale.Subtotal
		report.Discount += sale.Discount
		report.VAT += sale.VAT
		report.NetTotal += sale.Total
		bucket, ok := byPayment[sale.Payment.Method]
		if !ok {
			bucket = &domain.DailyReportPayment{Method: sale.Payment.Method}
			byPayment[sale.Payment.Method] = bucket
		}
		bucket.Sales++
		bucket.Total += sale.Total
	}
	for _, refund := range s.refundsByID {
		if refund.CreatedAt.Before(from) || !refund.CreatedAt.Before(to) {
			continue
		}
		report.RefundTotal += refund.TotalRefund
	}
	methods := make([]string, 0, len(byPayment))
	for method := range byPayment {
		methods = append(methods, method)
	}
	slices.Sort(methods)
	for _, method := range methods {
		report.ByPayment = append(report.ByPayment, *byPayment[method])
	}
	return report, nil
}

func (s *Store) CreateActivityLog(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.activityLogs = append(s.activityLogs, entry)
	return nil
}

func (s *Store) ListActivityLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.ActivityLog, 0, limit)
	for i := len(s.activityLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.activityLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// ---- auth accounts ----

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.usersByName[user.Username]; exists {
		return store.ErrInvalidRequest
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByName[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, u := range s.usersByName {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByName[username] = user
	return nil
}

// ---- clone helpers ----

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Items = slices.Clone(sale.Items)
	out.Meta = cloneMap(sale.Meta)
	out.Payment.Details = cloneMap(sale.Payment.Details)
	return out
}

func cloneDraft(draft domain.PendingPaymentDraft) domain.PendingPaymentDraft {
	out := draft
	out.SaleDraft.Items = slices.Clone(draft.SaleDraft.Items)
	out.Meta = cloneMap(draft.Meta)
	if draft.ProcessedAt != nil {
		at := *draft.ProcessedAt
		out.ProcessedAt = &at
	}
	return out
}

func cloneRefund(refund domain.Refund) domain.Refund {
	out := refund
	out.Items = slices.Clone(refund.Items)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
