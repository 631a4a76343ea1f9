package models

import (
	"time"

	"gorm.io/gorm"
)

// GORM-compatible models for the catalog tables managed through the GORM path.

// ProductGorm represents the products table with GORM tags
type ProductGorm struct {
	ID          int            `gorm:"primaryKey;column:id" json:"id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Kind        string         `gorm:"column:kind;not null;default:'RAW'" json:"kind"`
	SKU         string         `gorm:"column:sku;uniqueIndex" json:"sku"`
	Description string         `gorm:"column:description" json:"description"`
	CreatedBy   string         `gorm:"column:created_by" json:"created_by"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for ProductGorm
func (ProductGorm) TableName() string {
	return "products"
}

// SupplierGorm represents the suppliers table with GORM tags
type SupplierGorm struct {
	ID            int            `gorm:"primaryKey;column:id" json:"id"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	ContactPerson string         `gorm:"column:contact_person" json:"contact_person"`
	Email         string         `gorm:"column:email" json:"email"`
	PhoneNo       string         `gorm:"column:phone_no" json:"phone_no"`
	Address       string         `gorm:"column:address" json:"address"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for SupplierGorm
func (SupplierGorm) TableName() string {
	return "suppliers"
}
