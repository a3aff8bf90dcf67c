package domain

import "time"

const (
	RoleAdmin     = "admin"
	RoleCashier   = "cashier"
	RoleWarehouse = "warehouse"
)

const (
	ProductActive   = "active"
	ProductInactive = "inactive"
)

const (
	SaleCompleted = "completed"
	SaleRefunded  = "refunded"
)

const (
	DraftPending   = "pending"
	DraftProcessed = "processed"
	DraftFailed    = "failed"
)

const (
	PayCash   = "cash"
	PayCard   = "card"
	PayQR     = "qr"
	PayWallet = "wallet"
)

// MetaPaymentIntentID is the key under which a sale's payment details and a
// draft's meta carry the external gateway intent id used for reconciliation.
const MetaPaymentIntentID = "paymentIntentId"

type Product struct {
	ID           string    `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Price        int64     `json:"price"`
	Cost         int64     `json:"cost"`
	Stock        int       `json:"stock"`
	ReorderLevel int       `json:"reorderLevel"`
	Status       string    `json:"status"`
	Category     string    `json:"category"`
	Barcode      string    `json:"barcode"`
	Unit         string    `json:"unit"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type ProductCreateRequest struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Cost         int64  `json:"cost"`
	InitialStock int    `json:"initialStock"`
	ReorderLevel int    `json:"reorderLevel"`
	Category     string `json:"category"`
	Barcode      string `json:"barcode"`
	Unit         string `json:"unit"`
}

type ProductUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	Price        *int64  `json:"price,omitempty"`
	Cost         *int64  `json:"cost,omitempty"`
	ReorderLevel *int    `json:"reorderLevel,omitempty"`
	Status       *string `json:"status,omitempty"`
	Category     *string `json:"category,omitempty"`
	Barcode      *string `json:"barcode,omitempty"`
	Unit         *string `json:"unit,omitempty"`
}

// SaleItem is a denormalized line on the sale ledger. ProductID is nil for
// lines that reference a deleted or never-catalogued product; such lines do
// not move inventory.
type SaleItem struct {
	ProductID *string `json:"productId"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	UnitPrice int64   `json:"unitPrice"`
	Qty       int     `json:"qty"`
	LineTotal int64   `json:"lineTotal"`
}

type Payment struct {
	Method         string            `json:"method"`
	AmountReceived int64             `json:"amountReceived"`
	Change         int64             `json:"change"`
	Details        map[string]string `json:"details,omitempty"`
}

type Sale struct {
	ID          string            `json:"id"`
	InvoiceNo   string            `json:"invoiceNo"`
	CreatedBy   string            `json:"createdBy"`
	CashierName string            `json:"cashierName"`
	Items       []SaleItem        `json:"items"`
	Subtotal    int64             `json:"subtotal"`
	Discount    int64             `json:"discount"`
	VAT         int64             `json:"vat"`
	Total       int64             `json:"total"`
	Payment     Payment           `json:"payment"`
	Status      string            `json:"status"`
	Meta        map[string]string `json:"meta,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// PaymentIntentID returns the gateway intent id the sale was reconciled from,
// or "" for synchronous sales.
func (s *Sale) PaymentIntentID() string {
	if s == nil || s.Payment.Details == nil {
		return ""
	}
	return s.Payment.Details[MetaPaymentIntentID]
}

type CartLine struct {
	ProductID *string `json:"productId"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	UnitPrice int64   `json:"unitPrice"`
	Qty       int     `json:"qty"`
}

type CheckoutRequest struct {
	Items    []CartLine `json:"items"`
	Subtotal int64      `json:"subtotal"`
	Discount int64      `json:"discount"`
	VAT      int64      `json:"vat"`
	Total    int64      `json:"total"`
	Payment  Payment    `json:"payment"`
}

type CheckoutResponse struct {
	SaleID    string  `json:"saleId"`
	InvoiceNo string  `json:"invoiceNo"`
	Payment   Payment `json:"payment"`
	Sale      Sale    `json:"sale"`
}

// SaleDraft is the shape of a sale captured at payment-intent creation time,
// before the gateway has confirmed anything.
type SaleDraft struct {
	Items    []CartLine `json:"items"`
	Subtotal int64      `json:"subtotal"`
	Discount int64      `json:"discount"`
	VAT      int64      `json:"vat"`
	Total    int64      `json:"total"`
}

type PendingPaymentDraft struct {
	PaymentIntentID string            `json:"paymentIntentId"`
	Method          string            `json:"method"`
	SaleDraft       SaleDraft         `json:"saleDraft"`
	CreatedBy       string            `json:"createdBy"`
	CashierName     string            `json:"cashierName"`
	Status          string            `json:"status"`
	Meta            map[string]string `json:"meta,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	ProcessedAt     *time.Time        `json:"processedAt,omitempty"`
}

type PaymentIntentRequest struct {
	Total     int64             `json:"total"`
	InvoiceNo string            `json:"invoiceNo,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Draft     *SaleDraft        `json:"draft,omitempty"`
}

type PaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Status          string `json:"status"`
}

// StockMovement is an append-only stock-in or stock-out record. Quantity is
// always the delta moved; ResultingStock is the balance left afterwards, so
// both readings of the historical "quantity" field stay reconstructible.
type StockMovement struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"productId"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	ResultingStock int       `json:"resultingStock"`
	Reason         string    `json:"reason,omitempty"`
	ActorUsername  string    `json:"actorUsername"`
	ActorRole      string    `json:"actorRole"`
	CreatedAt      time.Time `json:"createdAt"`
}

type StockAuditLog struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	SystemStock   int       `json:"systemStock"`
	ActualStock   int       `json:"actualStock"`
	Quantity      int       `json:"quantity"`
	ActorUsername string    `json:"actorUsername"`
	ActorRole     string    `json:"actorRole"`
	CreatedAt     time.Time `json:"createdAt"`
}

type StockInRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type StockOutRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type StockAuditRequest struct {
	ProductID   string `json:"productId"`
	ActualStock int    `json:"actualStock"`
}

type RefundItem struct {
	ProductID   *string `json:"productId"`
	Name        string  `json:"name"`
	UnitPrice   int64   `json:"unitPrice"`
	OriginalQty int     `json:"originalQty"`
	ReturnQty   int     `json:"returnQty"`
	Reason      string  `json:"reason"`
	LineRefund  int64   `json:"lineRefund"`
}

type Refund struct {
	ID          string       `json:"id"`
	SaleID      string       `json:"saleId"`
	InvoiceNo   string       `json:"invoiceNo"`
	RefundedBy  string       `json:"refundedBy"`
	Items       []RefundItem `json:"items"`
	TotalRefund int64        `json:"totalRefund"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type RefundRequest struct {
	SaleID    string       `json:"saleId"`
	InvoiceNo string       `json:"invoiceNo"`
	Items     []RefundItem `json:"items"`
}

type SaleFilter struct {
	Receipt  string
	Product  string
	FromDate *time.Time
	ToDate   *time.Time
	Query    string
	Page     int
	Limit    int
}

type SalePage struct {
	Rows  []Sale `json:"rows"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

type ActivityLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	ActorRole  string    `json:"actorRole"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"createdAt"`
}

type DailyReportPayment struct {
	Method string `json:"method"`
	Sales  int64  `json:"sales"`
	Total  int64  `json:"total"`
}

type DailyReport struct {
	Date        string               `json:"date"`
	Sales       int64                `json:"sales"`
	GrossTotal  int64                `json:"grossTotal"`
	Discount    int64                `json:"discount"`
	VAT         int64                `json:"vat"`
	NetTotal    int64                `json:"netTotal"`
	RefundTotal int64                `json:"refundTotal"`
	ByPayment   []DailyReportPayment `json:"byPayment"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
