package payment

import (
	"context"
	"errors"
	"strings"

	"siampos/backend/internal/xid"
)

var ErrUnavailable = errors.New("payment gateway unavailable")

// Intent is the trio a gateway hands back when an intent is opened. The
// clientSecret goes to the terminal; the intent id is what the webhook later
// references.
type Intent struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"paymentIntentId"`
	Status       string `json:"status"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, method string, amount int64, metadata map[string]string) (*Intent, error)
}

// SimulatedGateway issues locally generated intents without calling out to a
// real processor. Confirmation still arrives through the webhook route, so the
// reconciliation path is exercised end to end in dev and test setups.
type SimulatedGateway struct{}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) CreateIntent(_ context.Context, method string, amount int64, _ map[string]string) (*Intent, error) {
	if amount < 1 {
		return nil, errors.New("amount must be positive")
	}

	intentID := strings.ReplaceAll(xid.New("pi"), "-", "_")
	status := "requires_payment_method"
	if method == "qr" || method == "wallet" {
		status = "requires_action"
	}
	return &Intent{
		ClientSecret: intentID + "_secret_" + strings.ReplaceAll(xid.New("cs"), "-", "_"),
		IntentID:     intentID,
		Status:       status,
	}, nil
}
