package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"siampos/backend/internal/domain"
	"siampos/backend/internal/store"
	"siampos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables and indexes on startup. Statements are
// idempotent so repeated boots are safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			price BIGINT NOT NULL,
			cost BIGINT NOT NULL DEFAULT 0,
			stock INT NOT NULL DEFAULT 0,
			reorder_level INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			category TEXT NOT NULL DEFAULT '',
			barcode TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			invoice_no TEXT NOT NULL UNIQUE,
			created_by TEXT NOT NULL DEFAULT '',
			cashier_name TEXT NOT NULL DEFAULT '',
			subtotal BIGINT NOT NULL,
			discount BIGINT NOT NULL DEFAULT 0,
			vat BIGINT NOT NULL DEFAULT 0,
			total BIGINT NOT NULL,
			payment_method TEXT NOT NULL,
			amount_received BIGINT NOT NULL DEFAULT 0,
			change BIGINT NOT NULL DEFAULT 0,
			payment_details JSONB,
			payment_intent_id TEXT,
			status TEXT NOT NULL DEFAULT 'completed',
			meta JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS sales_payment_intent_id_key
			ON sales (payment_intent_id) WHERE payment_intent_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id BIGSERIAL PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id),
			product_id TEXT,
			sku TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			unit_price BIGINT NOT NULL,
			qty INT NOT NULL,
			line_total BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_payment_drafts (
			payment_intent_id TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			sale_draft JSONB NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			cashier_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			meta JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS stock_in_logs (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity INT NOT NULL,
			resulting_stock INT NOT NULL,
			actor_username TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS stock_out_logs (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity INT NOT NULL,
			resulting_stock INT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			actor_username TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS stock_audit_logs (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			name TEXT NOT NULL,
			system_stock INT NOT NULL,
			actual_stock INT NOT NULL,
			quantity INT NOT NULL,
			actor_username TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id),
			invoice_no TEXT NOT NULL,
			refunded_by TEXT NOT NULL DEFAULT '',
			total_refund BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS refund_items (
			id BIGSERIAL PRIMARY KEY,
			refund_id TEXT NOT NULL REFERENCES refunds(id),
			product_id TEXT,
			name TEXT NOT NULL,
			unit_price BIGINT NOT NULL,
			original_qty INT NOT NULL,
			return_qty INT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			line_refund BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'cashier',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---- products ----

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Price < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidRequest
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Status == "" {
		product.Status = domain.ProductActive
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, price, cost, stock, reorder_level, status, category, barcode, unit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.SKU, product.Name, product.Price, product.Cost, product.Stock, product.ReorderLevel,
		product.Status, product.Category, product.Barcode, product.Unit, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}

	created := product
	return &created, nil
}

const productColumns = `id, sku, name, price, cost, stock, reorder_level, status, category, barcode, unit, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Cost, &p.Stock, &p.ReorderLevel,
		&p.Status, &p.Category, &p.Barcode, &p.Unit, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidRequest
	}

	// SKU and stock never change here; stock belongs to the movement paths.
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, cost = $4, reorder_level = $5, status = $6,
			category = $7, barcode = $8, unit = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, product.ID, product.Name, product.Price, product.Cost, product.ReorderLevel, product.Status,
		product.Category, product.Barcode, product.Unit)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- sale ledger ----

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.InvoiceNo == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	created, err := s.insertSaleTx(ctx, pgTx, sale)
	if err != nil {
		if isUniqueViolation(err) {
			if intent := sale.PaymentIntentID(); intent != "" {
				if existing, lookupErr := s.FindSaleByPaymentIntent(ctx, intent); lookupErr == nil {
					return existing, nil
				}
			}
			return nil, store.ErrDuplicateInvoice
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// insertSaleTx decrements stock conditionally for every line with a product
// id, then inserts the sale and its items, all inside the caller's
// transaction.
func (s *Store) insertSaleTx(ctx context.Context, pgTx *sql.Tx, sale domain.Sale) (*domain.Sale, error) {
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidRequest
		}
		if item.ProductID == nil {
			continue
		}
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, item.Qty, *item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var name string
			var available int
			err := pgTx.QueryRowContext(ctx, `
				SELECT name, stock FROM products WHERE id = $1
			`, *item.ProductID).Scan(&name, &available)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("%w: invalid product %s", store.ErrInvalidRequest, item.Name)
				}
				return nil, err
			}
			return nil, &store.InsufficientStockError{
				ProductID: *item.ProductID,
				Name:      name,
				Available: available,
				Requested: item.Qty,
			}
		}
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

	detailsJSON, err := marshalMap(sale.Payment.Details)
	if err != nil {
		return nil, err
	}
	metaJSON, err := marshalMap(sale.Meta)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_no, created_by, cashier_name, subtotal, discount, vat, total,
			payment_method, amount_received, change, payment_details, payment_intent_id,
			status, meta, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, sale.ID, sale.InvoiceNo, sale.CreatedBy, sale.CashierName, sale.Subtotal, sale.Discount,
		sale.VAT, sale.Total, sale.Payment.Method, sale.Payment.AmountReceived, sale.Payment.Change,
		detailsJSON, nullIfEmpty(sale.PaymentIntentID()), sale.Status, metaJSON, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, sku, name, unit_price, qty, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, nullIfEmptyPtr(item.ProductID), item.SKU, item.Name, item.UnitPrice, item.Qty, item.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) FindSaleByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Sale, error) {
	return s.findSale(ctx, "payment_intent_id", paymentIntentID)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "payment_intent_id" {
		return nil, errors.New("unsupported lookup column")
	}

	var sale domain.Sale
	var detailsRaw []byte
	var metaRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_no, created_by, cashier_name, subtotal, discount, vat, total,
			payment_method, amount_received, change, payment_details, status, meta, created_at
		FROM sales
		WHERE `+column+` = $1
	`, value).Scan(
		&sale.ID,
		&sale.InvoiceNo,
		&sale.CreatedBy,
		&sale.CashierName,
		&sale.Subtotal,
		&sale.Discount,
		&sale.VAT,
		&sale.Total,
		&sale.Payment.Method,
		&sale.Payment.AmountReceived,
		&sale.Payment.Change,
		&detailsRaw,
		&sale.Status,
		&metaRaw,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if sale.Payment.Details, err = unmarshalMap(detailsRaw); err != nil {
		return nil, err
	}
	if sale.Meta, err = unmarshalMap(metaRaw); err != nil {
		return nil, err
	}

	items, err := s.saleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) saleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, sku, name, unit_price, qty, line_total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		var productID sql.NullString
		if err := rows.Scan(&productID, &item.SKU, &item.Name, &item.UnitPrice, &item.Qty, &item.LineTotal); err != nil {
			return nil, err
		}
		if productID.Valid {
			id := productID.String
			item.ProductID = &id
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) (domain.SalePage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	result := domain.SalePage{Rows: make([]domain.Sale, 0, limit), Page: page, Limit: limit}

	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Receipt != "" {
		where = append(where, "s.invoice_no ILIKE "+arg("%"+filter.Receipt+"%"))
	}
	if filter.FromDate != nil {
		where = append(where, "s.created_at >= "+arg(*filter.FromDate))
	}
	if filter.ToDate != nil {
		where = append(where, "s.created_at < "+arg(*filter.ToDate))
	}
	if filter.Product != "" {
		p := arg("%" + filter.Product + "%")
		where = append(where, `EXISTS (
			SELECT 1 FROM sale_items si
			WHERE si.sale_id = s.id AND (si.name ILIKE `+p+` OR si.sku ILIKE `+p+`)
		)`)
	}
	if filter.Query != "" {
		q := arg("%" + filter.Query + "%")
		where = append(where, `(s.invoice_no ILIKE `+q+` OR s.cashier_name ILIKE `+q+` OR s.payment_method ILIKE `+q+` OR EXISTS (
			SELECT 1 FROM sale_items si WHERE si.sale_id = s.id AND si.name ILIKE `+q+`
		))`)
	}
	cond := strings.Join(where, " AND ")

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales s WHERE `+cond, args...).Scan(&result.Total)
	if err != nil {
		return result, err
	}

	pagedArgs := append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id
		FROM sales s
		WHERE `+cond+`
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $`+strconv.Itoa(len(args)+1)+` OFFSET $`+strconv.Itoa(len(args)+2), pagedArgs...)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return result, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return result, err
	}

	for _, id := range ids {
		sale, err := s.GetSale(ctx, id)
		if err != nil {
			return result, err
		}
		result.Rows = append(result.Rows, *sale)
	}
	return result, nil
}

// ---- pending-payment drafts ----

func (s *Store) CreateDraft(ctx context.Context, draft domain.PendingPaymentDraft) (*domain.PendingPaymentDraft, error) {
	if draft.PaymentIntentID == "" {
		return nil, store.ErrInvalidRequest
	}
	if draft.Status == "" {
		draft.Status = domain.DraftPending
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}

	draftJSON, err := json.Marshal(draft.SaleDraft)
	if err != nil {
		return nil, err
	}
	metaJSON, err := marshalMap(draft.Meta)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_payment_drafts (
			payment_intent_id, method, sale_draft, created_by, cashier_name, status, meta, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, draft.PaymentIntentID, draft.Method, draftJSON, draft.CreatedBy, draft.CashierName,
		draft.Status, metaJSON, draft.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRequest
		}
		return nil, err
	}
	created := draft
	return &created, nil
}

func (s *Store) GetDraft(ctx context.Context, paymentIntentID string) (*domain.PendingPaymentDraft, error) {
	var draft domain.PendingPaymentDraft
	var draftRaw []byte
	var metaRaw []byte
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT payment_intent_id, method, sale_draft, created_by, cashier_name, status, meta, created_at, processed_at
		FROM pending_payment_drafts
		WHERE payment_intent_id = $1
	`, paymentIntentID).Scan(
		&draft.PaymentIntentID,
		&draft.Method,
		&draftRaw,
		&draft.CreatedBy,
		&draft.CashierName,
		&draft.Status,
		&metaRaw,
		&draft.CreatedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	draft.CreatedAt = draft.CreatedAt.UTC()
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		draft.ProcessedAt = &at
	}
	if err := json.Unmarshal(draftRaw, &draft.SaleDraft); err != nil {
		return nil, err
	}
	if draft.Meta, err = unmarshalMap(metaRaw); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (s *Store) UpdateDraftStatus(ctx context.Context, paymentIntentID string, status string, meta map[string]string) error {
	metaJSON, err := marshalMap(meta)
	if err != nil {
		return err
	}

	// Guarded so a settled draft never reverts.
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_payment_drafts
		SET status = $2, meta = COALESCE(meta, '{}'::jsonb) || COALESCE($3::jsonb, '{}'::jsonb)
		WHERE payment_intent_id = $1 AND status <> $4
	`, paymentIntentID, status, metaJSON, domain.DraftProcessed)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `
			SELECT status FROM pending_payment_drafts WHERE payment_intent_id = $1
		`, paymentIntentID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		return store.ErrDraftProcessed
	}
	return nil
}

func (s *Store) SettleDraft(ctx context.Context, paymentIntentID string, sale domain.Sale) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM pending_payment_drafts
		WHERE payment_intent_id = $1
		FOR UPDATE
	`, paymentIntentID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.DraftProcessed {
		return s.FindSaleByPaymentIntent(ctx, paymentIntentID)
	}

	created, err := s.insertSaleTx(ctx, pgTx, sale)
	if err != nil {
		// The unique index on payment_intent_id is the backstop for a settle
		// racing this transaction.
		if isUniqueViolation(err) {
			if existing, lookupErr := s.FindSaleByPaymentIntent(ctx, paymentIntentID); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE pending_payment_drafts
		SET status = $2, processed_at = now()
		WHERE payment_intent_id = $1
	`, paymentIntentID, domain.DraftProcessed)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// ---- stock movements ----

func (s *Store) StockIn(ctx context.Context, productID string, qty int, actor domain.Actor) (*domain.StockMovement, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sku string
	var name string
	var resulting int
	err = pgTx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1, updated_at = now()
		WHERE id = $2
		RETURNING sku, name, stock
	`, qty, productID).Scan(&sku, &name, &resulting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	entry := domain.StockMovement{
		ID:             xid.New("stkin"),
		ProductID:      productID,
		SKU:            sku,
		Name:           name,
		Quantity:       qty,
		ResultingStock: resulting,
		ActorUsername:  actor.Username,
		ActorRole:      actor.Role,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_in_logs (id, product_id, sku, name, quantity, resulting_stock, actor_username, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ProductID, entry.SKU, entry.Name, entry.Quantity, entry.ResultingStock,
		entry.ActorUsername, entry.ActorRole, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) StockOut(ctx context.Context, productID string, qty int, reason string, actor domain.Actor) (*domain.StockMovement, error) {
	if qty < 1 || strings.TrimSpace(reason) == "" {
		return nil, store.ErrInvalidRequest
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sku string
	var name string
	var resulting int
	err = pgTx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1
		RETURNING sku, name, stock
	`, qty, productID).Scan(&sku, &name, &resulting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var available int
			lookupErr := pgTx.QueryRowContext(ctx, `
				SELECT name, stock FROM products WHERE id = $1
			`, productID).Scan(&name, &available)
			if lookupErr != nil {
				if errors.Is(lookupErr, sql.ErrNoRows) {
					return nil, store.ErrNotFound
				}
				return nil, lookupErr
			}
			return nil, &store.InsufficientStockError{
				ProductID: productID,
				Name:      name,
				Available: available,
				Requested: qty,
			}
		}
		return nil, err
	}

	entry := domain.StockMovement{
		ID:             xid.New("stkout"),
		ProductID:      productID,
		SKU:            sku,
		Name:           name,
		Quantity:       qty,
		ResultingStock: resulting,
		Reason:         reason,
		ActorUsername:  actor.Username,
		ActorRole:      actor.Role,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_out_logs (id, product_id, sku, name, quantity, resulting_stock, reason, actor_username, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.ProductID, entry.SKU, entry.Name, entry.Quantity, entry.ResultingStock,
		entry.Reason, entry.ActorUsername, entry.ActorRole, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) StockAudit(ctx context.Context, productID string, actualStock int, actor domain.Actor) (*domain.StockAuditLog, error) {
	if actualStock < 0 {
		return nil, store.ErrInvalidRequest
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sku string
	var name string
	var systemStock int
	err = pgTx.QueryRowContext(ctx, `
		SELECT sku, name, stock FROM products WHERE id = $1 FOR UPDATE
	`, productID).Scan(&sku, &name, &systemStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE products SET stock = $1, updated_at = now() WHERE id = $2
	`, actualStock, productID)
	if err != nil {
		return nil, err
	}

	entry := domain.StockAuditLog{
		ID:            xid.New("stkaud"),
		ProductID:     productID,
		SKU:           sku,
		Name:          name,
		SystemStock:   systemStock,
		ActualStock:   actualStock,
		Quantity:      actualStock - systemStock,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_audit_logs (id, product_id, sku, name, system_stock, actual_stock, quantity, actor_username, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.ProductID, entry.SKU, entry.Name, entry.SystemStock, entry.ActualStock,
		entry.Quantity, entry.ActorUsername, entry.ActorRole, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) ListStockIns(ctx context.Context, limit int) ([]domain.StockMovement, error) {
	return s.listMovements(ctx, "stock_in_logs", false, limit)
}

func (s *Store) ListStockOuts(ctx context.Context, limit int) ([]domain.StockMovement, error) {
	return s.listMovements(ctx, "stock_out_logs", true, limit)
}

func (s *Store) listMovements(ctx context.Context, table string, withReason bool, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	columns := `id, product_id, sku, name, quantity, resulting_stock, actor_username, actor_role, created_at`
	if withReason {
		columns = `id, product_id, sku, name, quantity, resulting_stock, reason, actor_username, actor_role, created_at`
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM `+table+`
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var entry domain.StockMovement
		var scanErr error
		if withReason {
			scanErr = rows.Scan(&entry.ID, &entry.ProductID, &entry.SKU, &entry.Name, &entry.Quantity,
				&entry.ResultingStock, &entry.Reason, &entry.ActorUsername, &entry.ActorRole, &entry.CreatedAt)
		} else {
			scanErr = rows.Scan(&entry.ID, &entry.ProductID, &entry.SKU, &entry.Name, &entry.Quantity,
				&entry.ResultingStock, &entry.ActorUsername, &entry.ActorRole, &entry.CreatedAt)
		}
		if scanErr != nil {
			return nil, scanErr
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListStockAudits(ctx context.Context, limit int) ([]domain.StockAuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, sku, name, system_stock, actual_stock, quantity, actor_username, actor_role, created_at
		FROM stock_audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockAuditLog, 0, limit)
	for rows.Next() {
		var entry domain.StockAuditLog
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.SKU, &entry.Name, &entry.SystemStock,
			&entry.ActualStock, &entry.Quantity, &entry.ActorUsername, &entry.ActorRole, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ---- refunds ----

func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	if refund.SaleID == "" || len(refund.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if refund.ID == "" {
		refund.ID = xid.New("rfd")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, sale_id, invoice_no, refunded_by, total_refund, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, refund.ID, refund.SaleID, refund.InvoiceNo, refund.RefundedBy, refund.TotalRefund, refund.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range refund.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO refund_items (refund_id, product_id, name, unit_price, original_qty, return_qty, reason, line_refund)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, refund.ID, nullIfEmptyPtr(item.ProductID), item.Name, item.UnitPrice, item.OriginalQty,
			item.ReturnQty, item.Reason, item.LineRefund)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := refund
	return &created, nil
}

func (s *Store) GetRefund(ctx context.Context, id string) (*domain.Refund, error) {
	var refund domain.Refund
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, invoice_no, refunded_by, total_refund, created_at
		FROM refunds
		WHERE id = $1
	`, id).Scan(&refund.ID, &refund.SaleID, &refund.InvoiceNo, &refund.RefundedBy, &refund.TotalRefund, &refund.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	refund.CreatedAt = refund.CreatedAt.UTC()

	items, err := s.refundItems(ctx, refund.ID)
	if err != nil {
		return nil, err
	}
	refund.Items = items
	return &refund, nil
}

func (s *Store) refundItems(ctx context.Context, refundID string) ([]domain.RefundItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, unit_price, original_qty, return_qty, reason, line_refund
		FROM refund_items
		WHERE refund_id = $1
		ORDER BY id ASC
	`, refundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.RefundItem, 0, 4)
	for rows.Next() {
		var item domain.RefundItem
		var productID sql.NullString
		if err := rows.Scan(&productID, &item.Name, &item.UnitPrice, &item.OriginalQty, &item.ReturnQty, &item.Reason, &item.LineRefund); err != nil {
			return nil, err
		}
		if productID.Valid {
			id := productID.String
			item.ProductID = &id
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListRefunds(ctx context.Context, limit int) ([]domain.Refund, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, invoice_no, refunded_by, total_refund, created_at
		FROM refunds
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.Refund, 0, limit)
	for rows.Next() {
		var refund domain.Refund
		if err := rows.Scan(&refund.ID, &refund.SaleID, &refund.InvoiceNo, &refund.RefundedBy, &refund.TotalRefund, &refund.CreatedAt); err != nil {
			return nil, err
		}
		refund.CreatedAt = refund.CreatedAt.UTC()
		refunds = append(refunds, refund)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range refunds {
		items, err := s.refundItems(ctx, refunds[i].ID)
		if err != nil {
			return nil, err
		}
		refunds[i].Items = items
	}
	return refunds, nil
}

func (s *Store) RefundedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	result := make(map[string]int)
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(ri.product_id, 'name:' || ri.name), COALESCE(SUM(ri.return_qty), 0)::int
		FROM refunds r
		JOIN refund_items ri ON ri.refund_id = r.id
		WHERE r.sale_id = $1
		GROUP BY 1
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var qty int
		if err := rows.Scan(&key, &qty); err != nil {
			return nil, err
		}
		result[key] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) MarkSaleRefunded(ctx context.Context, saleID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales SET status = $2 WHERE id = $1
	`, saleID, domain.SaleRefunded)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- reporting / audit trail ----

func (s *Store) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		Date:      from.UTC().Format("2006-01-02"),
		ByPayment: make([]domain.DailyReportPayment, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(subtotal),0)::bigint,
			COALESCE(SUM(discount),0)::bigint,
			COALESCE(SUM(vat),0)::bigint,
			COALESCE(SUM(total),0)::bigint
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(
		&report.Sales,
		&report.GrossTotal,
		&report.Discount,
		&report.VAT,
		&report.NetTotal,
	)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_refund),0)::bigint
		FROM refunds
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.RefundTotal)
	if err != nil {
		return report, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total),0)::bigint
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.DailyReportPayment
		if err := rows.Scan(&row.Method, &row.Sales, &row.Total); err != nil {
			return report, err
		}
		report.ByPayment = append(report.ByPayment, row)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Store) CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, actor, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Actor, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListActivityLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, actor_role, action, entity_type, entity_id, detail, created_at
		FROM activity_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.ActivityLog, 0, limit)
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// ---- auth accounts ----

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRequest
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- helpers ----

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func marshalMap(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func unmarshalMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfEmptyPtr(val *string) any {
	if val == nil || *val == "" {
		return nil
	}
	return *val
}
