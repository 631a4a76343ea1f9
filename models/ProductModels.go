package models

import "time"

// Product kinds: raw materials arrive in supply batches, finished products
// are what pack entries are made against.
const (
	ProductKindRaw      = "RAW"
	ProductKindFinished = "FINISHED"
)

// Product represents a row in the products table.
type Product struct {
	ID          int       `json:"id" example:"1"`
	Name        string    `json:"name" example:"Hazelnut kernel 11-13mm"`
	Kind        string    `json:"kind" example:"FINISHED"`
	SKU         string    `json:"sku" example:"HZL-1113"`
	Description string    `json:"description" example:"Calibrated raw kernel"`
	CreatedBy   string    `json:"created_by" example:"admin"`
	CreatedAt   time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}
