package models

import "time"

// Supply batch lifecycle. A batch is UNPROCESSED until a lot run starts on
// it, PROCESSING while the run is open, PROCESSED once the run completes.
const (
	BatchStatusUnprocessed = "UNPROCESSED"
	BatchStatusProcessing  = "PROCESSING"
	BatchStatusProcessed   = "PROCESSED"
)

// Supplier represents a row in the suppliers table.
type Supplier struct {
	ID            int       `json:"id" example:"1"`
	Name          string    `json:"name" example:"Kakheti Nut Farm"`
	ContactPerson string    `json:"contact_person" example:"Giorgi M."`
	Email         string    `json:"email" example:"orders@kakhetinuts.ge"`
	PhoneNo       string    `json:"phone_no" example:"555987654"`
	Address       string    `json:"address" example:"Telavi, Kakheti"`
	CreatedAt     time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt     time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// Shipment is one supplier delivery; its contents are split into supply batches.
type Shipment struct {
	ID           int       `json:"id" example:"1"`
	SupplierID   int       `json:"supplier_id" example:"1"`
	SupplierName string    `json:"supplier_name,omitempty" example:"Kakheti Nut Farm"`
	DeliveryNote string    `json:"delivery_note" example:"DN-2024-0042"`
	ReceivedAt   time.Time `json:"received_at" example:"2024-01-15T08:00:00Z"`
	TotalMassKg  float64   `json:"total_mass_kg" example:"1200.5"`
	Remarks      string    `json:"remarks" example:""`
	CreatedAt    time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// SupplyBatch is one lot of raw material. QuantityKg is the intake mass and
// is copied onto a lot run as its initial quantity when processing starts.
type SupplyBatch struct {
	ID              int       `json:"id" example:"1"`
	Code            string    `json:"code" example:"NB-24017"`
	ShipmentID      int       `json:"shipment_id" example:"1"`
	ProductID       int       `json:"product_id" example:"2"`
	ProductName     string    `json:"product_name,omitempty" example:"Hazelnut in-shell"`
	QuantityKg      float64   `json:"quantity_kg" example:"500"`
	Status          string    `json:"status" example:"UNPROCESSED"`
	IsRework        bool      `json:"is_rework" example:"false"`
	OriginalBatchID *int      `json:"original_batch_id,omitempty"`
	CreatedAt       time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt       time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// SupplyBatchRequest is the create/update body for supply batches.
type SupplyBatchRequest struct {
	ShipmentID int     `json:"shipment_id" binding:"required"`
	ProductID  int     `json:"product_id" binding:"required"`
	QuantityKg float64 `json:"quantity_kg" binding:"required"`
}
