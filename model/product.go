package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row the checkout path reads trusted prices from.
// Catalog maintenance itself lives elsewhere; this core only looks prices up.
type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}
