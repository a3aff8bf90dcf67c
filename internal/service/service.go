package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"siampos/backend/internal/cache"
	"siampos/backend/internal/domain"
	"siampos/backend/internal/payment"
	"siampos/backend/internal/store"
	"siampos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	gateway   payment.Gateway
	intents   cache.IntentCache
	intentTTL time.Duration
}

func New(repo store.Repository, gateway payment.Gateway, intents cache.IntentCache, intentTTL time.Duration) *Service {
	if gateway == nil {
		gateway = payment.NewSimulatedGateway()
	}
	if intents == nil {
		intents = cache.NoopIntentCache{}
	}
	if intentTTL < time.Minute {
		intentTTL = 24 * time.Hour
	}

	return &Service{
		repo:      repo,
		gateway:   gateway,
		intents:   intents,
		intentTTL: intentTTL,
	}
}

// ---- products ----

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidRequest
	}
	if req.Price < 0 || req.Cost < 0 || req.InitialStock < 0 || req.ReorderLevel < 0 {
		return domain.Product{}, store.ErrInvalidRequest
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:          req.SKU,
		Name:         req.Name,
		Price:        req.Price,
		Cost:         req.Cost,
		Stock:        req.InitialStock,
		ReorderLevel: req.ReorderLevel,
		Status:       domain.ProductActive,
		Category:     strings.TrimSpace(req.Category),
		Barcode:      strings.TrimSpace(req.Barcode),
		Unit:         strings.TrimSpace(req.Unit),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logActivity(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%d,stock=%d", created.SKU, created.Price, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, store.ErrInvalidRequest
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Name = name
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Price = *req.Price
	}
	if req.Cost != nil {
		if *req.Cost < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Cost = *req.Cost
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.Status != nil {
		if *req.Status != domain.ProductActive && *req.Status != domain.ProductInactive {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Status = *req.Status
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logActivity(ctx, "product_update", "product", saved.ID, fmt.Sprintf("status=%s,price=%d", saved.Status, saved.Price))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidRequest
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logActivity(ctx, "product_delete", "product", id, "")
	return nil
}

// ---- checkout ----

var paymentMethods = map[string]bool{
	domain.PayCash:   true,
	domain.PayCard:   true,
	domain.PayQR:     true,
	domain.PayWallet: true,
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	if len(req.Items) == 0 {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: no items", store.ErrInvalidRequest)
	}

	// Validate every line before anything is written: a bad line anywhere
	// must not leave earlier lines half-applied.
	items := make([]domain.SaleItem, 0, len(req.Items))
	subtotal := int64(0)
	for _, line := range req.Items {
		name := strings.TrimSpace(line.Name)
		if name == "" || line.Qty < 1 || line.UnitPrice < 0 {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: bad cart line %q", store.ErrInvalidRequest, line.Name)
		}
		lineTotal := line.UnitPrice * int64(line.Qty)
		items = append(items, domain.SaleItem{
			ProductID: line.ProductID,
			SKU:       strings.TrimSpace(line.SKU),
			Name:      name,
			UnitPrice: line.UnitPrice,
			Qty:       line.Qty,
			LineTotal: lineTotal,
		})
		subtotal += lineTotal
	}

	if req.Discount < 0 || req.VAT < 0 || req.Discount > subtotal {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: bad discount or vat", store.ErrInvalidRequest)
	}
	if req.Subtotal != subtotal {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: subtotal mismatch: got %d, computed %d", store.ErrInvalidRequest, req.Subtotal, subtotal)
	}
	total := subtotal - req.Discount + req.VAT
	if req.Total != total {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: total mismatch: got %d, computed %d", store.ErrInvalidRequest, req.Total, total)
	}

	pay, err := normalizePayment(req.Payment, total)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()
	sale := domain.Sale{
		ID:          xid.New("sale"),
		InvoiceNo:   xid.InvoiceNo(now),
		CreatedBy:   actor.Username,
		CashierName: actor.Username,
		Items:       items,
		Subtotal:    subtotal,
		Discount:    req.Discount,
		VAT:         req.VAT,
		Total:       total,
		Payment:     pay,
		Status:      domain.SaleCompleted,
		CreatedAt:   now,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	checkoutsTotal.WithLabelValues(created.Payment.Method).Inc()
	s.logActivity(ctx, "checkout", "sale", created.ID, fmt.Sprintf("invoice=%s,total=%d,payment=%s", created.InvoiceNo, created.Total, created.Payment.Method))

	return domain.CheckoutResponse{
		SaleID:    created.ID,
		InvoiceNo: created.InvoiceNo,
		Payment:   created.Payment,
		Sale:      *created,
	}, nil
}

func normalizePayment(pay domain.Payment, total int64) (domain.Payment, error) {
	pay.Method = strings.ToLower(strings.TrimSpace(pay.Method))
	if pay.Method == "" {
		pay.Method = domain.PayCash
	}
	if !paymentMethods[pay.Method] {
		return domain.Payment{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidRequest, pay.Method)
	}

	if pay.Method == domain.PayCash {
		if pay.AmountReceived < total {
			return domain.Payment{}, fmt.Errorf("%w: insufficient cash received", store.ErrInvalidRequest)
		}
		pay.Change = pay.AmountReceived - total
	} else {
		pay.AmountReceived = total
		pay.Change = 0
	}
	return pay, nil
}

// ---- sale lookup ----

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	s.backfillUnitPrices(ctx, sale)
	return *sale, nil
}

func (s *Service) GetSaleByPaymentIntent(ctx context.Context, intentID string) (domain.Sale, error) {
	if strings.TrimSpace(intentID) == "" {
		return domain.Sale{}, store.ErrInvalidRequest
	}
	sale, err := s.repo.FindSaleByPaymentIntent(ctx, intentID)
	if err != nil {
		return domain.Sale{}, err
	}
	s.backfillUnitPrices(ctx, sale)
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) (domain.SalePage, error) {
	page, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SalePage{}, err
	}
	for i := range page.Rows {
		s.backfillUnitPrices(ctx, &page.Rows[i])
	}
	return page, nil
}

// backfillUnitPrices fills unit prices on sale lines written before the line
// price was denormalized, using the current product price. Display-only: the
// stored row stays untouched.
func (s *Service) backfillUnitPrices(ctx context.Context, sale *domain.Sale) {
	for i := range sale.Items {
		item := &sale.Items[i]
		if item.UnitPrice > 0 || item.ProductID == nil {
			continue
		}
		product, err := s.repo.GetProduct(ctx, *item.ProductID)
		if err != nil {
			continue
		}
		item.UnitPrice = product.Price
		if item.LineTotal == 0 {
			item.LineTotal = product.Price * int64(item.Qty)
		}
	}
}

// ---- reporting and audit trail ----

func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.DailyReport{}, store.ErrInvalidRequest
		}
		day = parsed.UTC()
	}
	from := day
	to := from.Add(24 * time.Hour)

	report, err := s.repo.GetDailyReport(ctx, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.Date = from.Format("2006-01-02")
	return report, nil
}

func (s *Service) ListActivityLogs(ctx context.Context, date string, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidRequest
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListActivityLogs(ctx, from, to, limit)
}

func (s *Service) logActivity(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateActivityLog(ctx, domain.ActivityLog{
		ID:         xid.New("act"),
		Actor:      actor.Username,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		slog.Warn("failed to write activity log", "action", action, "entity", entityType+"/"+entityID, "err", err)
	}
}

// ---- user management ----

var roles = map[string]bool{
	domain.RoleAdmin:     true,
	domain.RoleCashier:   true,
	domain.RoleWarehouse: true,
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" || len(req.Password) < 8 {
		return domain.User{}, fmt.Errorf("%w: username required and password must be at least 8 characters", store.ErrInvalidRequest)
	}
	if req.Role == "" {
		req.Role = domain.RoleCashier
	}
	if !roles[req.Role] {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidRequest, req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	account := domain.UserAccount{
		Username:  req.Username,
		Password:  string(hash),
		Role:      req.Role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.User{}, err
	}

	s.logActivity(ctx, "user_create", "user", account.Username, "role="+account.Role)
	return domain.User{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, domain.User{
			Username:  account.Username,
			Role:      account.Role,
			Active:    account.Active,
			CreatedAt: account.CreatedAt,
		})
	}
	return users, nil
}

func (s *Service) ChangePassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPassword(ctx, username, string(hash)); err != nil {
		return err
	}
	s.logActivity(ctx, "user_password_change", "user", username, "")
	return nil
}

// Authenticate checks credentials against the user store. Used by the HTTP
// layer's login handler.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.Actor, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.Actor{}, store.ErrInvalidRequest
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	for _, account := range accounts {
		if account.Username != username {
			continue
		}
		if !account.Active {
			break
		}
		if bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)) == nil {
			return domain.Actor{Username: account.Username, Role: account.Role}, nil
		}
		break
	}
	return domain.Actor{}, errors.New("invalid credentials")
}
