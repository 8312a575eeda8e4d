package domain

import "time"

// CustomerStatus enumerates the CRM lifecycle states of a customer.
type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "active"
	CustomerInactive CustomerStatus = "inactive"
	CustomerChurned  CustomerStatus = "churned"
)

// Customer is the read-side projection the CRM works with. Purchase history
// fields are maintained by the commerce backend; this service only reads them.
// Column names follow the upstream store schema (Portuguese), hence the tags.
type Customer struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	EmailHash string `json:"-" db:"email_hash"`
	Name      string `json:"nome" db:"nome"`
	Phone     string `json:"telefone" db:"telefone"`

	Status              CustomerStatus `json:"status" db:"status"`
	DaysSinceLastOrder  int            `json:"dias_sem_comprar" db:"dias_sem_comprar"`
	TotalSpent          float64        `json:"valor_total_gasto" db:"valor_total_gasto"`
	AverageTicket       float64        `json:"ticket_medio" db:"ticket_medio"`
	OrderCount          int            `json:"numero_pedidos" db:"numero_pedidos"`
	PurchasedCategories []string       `json:"categorias_compradas" db:"categorias_compradas"`
	WishlistItems       int            `json:"itens_wishlist" db:"itens_wishlist"`
	HasActiveCart       bool           `json:"tem_carrinho_ativo" db:"tem_carrinho_ativo"`

	// Consent and governance flags. A customer is only eligible for
	// campaign mail when MarketingEmails is true and
	// BlockedCommunications is false.
	MarketingEmails       bool `json:"marketing_emails" db:"marketing_emails"`
	BlockedCommunications bool `json:"blocked_communications" db:"blocked_communications"`

	LastOrderAt *time.Time `json:"ultima_compra_at" db:"ultima_compra_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the customer may receive campaign mail.
func (c *Customer) Eligible() bool {
	return c.MarketingEmails && !c.BlockedCommunications
}

// Field resolves a filter field name to its value on this customer.
// The second return is false for unknown fields, which the filter
// evaluator treats as a non-match.
func (c *Customer) Field(name string) (any, bool) {
	switch name {
	case "dias_sem_comprar":
		return c.DaysSinceLastOrder, true
	case "valor_total_gasto":
		return c.TotalSpent, true
	case "ticket_medio":
		return c.AverageTicket, true
	case "numero_pedidos":
		return c.OrderCount, true
	case "categorias_compradas":
		return c.PurchasedCategories, true
	case "itens_wishlist":
		return c.WishlistItems, true
	case "tem_carrinho_ativo":
		return c.HasActiveCart, true
	case "marketing_emails":
		return c.MarketingEmails, true
	case "blocked_communications":
		return c.BlockedCommunications, true
	case "status":
		return string(c.Status), true
	case "email":
		return c.Email, true
	case "nome":
		return c.Name, true
	}
	return nil, false
}

// Tag is a free-form label attached to customers (many-to-many).
// Tag membership is resolved by the store, never by the filter evaluator.
type Tag struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Color         string    `json:"color" db:"color"`
	CustomerCount int       `json:"customer_count" db:"customer_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
