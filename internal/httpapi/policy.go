package httpapi

import "siampos/backend/internal/domain"

// Capabilities guard route groups. A role maps to the set it may exercise;
// the table is injected so deployments can tighten or extend it without
// touching handler code.
const (
	CapSalesRead    = "sales:read"
	CapSalesWrite   = "sales:write"
	CapPayments     = "payments:intent"
	CapStockRead    = "stock:read"
	CapStockWrite   = "stock:write"
	CapProductRead  = "products:read"
	CapProductWrite = "products:write"
	CapRefundRead   = "refunds:read"
	CapRefundWrite  = "refunds:write"
	CapReports      = "reports:read"
	CapUserManage   = "users:manage"
)

type Policy map[string]map[string]bool

// DefaultPolicy is the baseline permission table: admins hold everything,
// cashiers run the register, warehouse staff run inventory.
func DefaultPolicy() Policy {
	grant := func(caps ...string) map[string]bool {
		set := make(map[string]bool, len(caps))
		for _, cap := range caps {
			set[cap] = true
		}
		return set
	}
	return Policy{
		domain.RoleAdmin: grant(
			CapSalesRead, CapSalesWrite, CapPayments,
			CapStockRead, CapStockWrite,
			CapProductRead, CapProductWrite,
			CapRefundRead, CapRefundWrite,
			CapReports, CapUserManage,
		),
		domain.RoleCashier: grant(
			CapSalesRead, CapSalesWrite, CapPayments,
			CapProductRead, CapRefundRead,
		),
		domain.RoleWarehouse: grant(
			CapStockRead, CapStockWrite,
			CapProductRead, CapProductWrite,
		),
	}
}

func (p Policy) Allows(role string, capability string) bool {
	return p[role][capability]
}
