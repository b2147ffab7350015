package domain

import (
	"time"

	"github.com/google/uuid"
)

// User carries the identity attributes the wallet core needs: the funding-resolution
// hints supplied by payment gateways and the bcrypt hash of the transaction PIN.
// Account management beyond this lives outside the core.
type User struct {
	ID                   uuid.UUID `json:"id"`
	Email                string    `json:"email"`
	VirtualAccountNumber *string   `json:"virtual_account_number,omitempty"`
	GatewayCustomerID    *string   `json:"gateway_customer_id,omitempty"`
	TransactionPinHash   string    `json:"-"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
}
