// Package domain contains the receipt aggregate: a scanned or manually
// entered expense record that exclusively owns its line items.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Source records how a receipt entered the system.
type Source string

const (
	SourceAIScan Source = "ai_scan"
	SourceManual Source = "manual"
)

// Receipt is immutable once created within this system's scope. UserID is
// nullable: anonymously captured receipts are allowed and never touch quota.
type Receipt struct {
	ID     snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID *snowflake.ID `gorm:"index" json:"user_id,omitempty"`

	StoreName    string     `gorm:"type:text;not null" json:"store_name"`
	StoreAddress string     `gorm:"type:text" json:"store_address,omitempty"`
	ReceiptDate  *time.Time `gorm:"" json:"receipt_date,omitempty"`

	TotalAmount float64 `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	TaxAmount   float64 `gorm:"type:decimal(12,2)" json:"tax_amount"`
	Currency    string  `gorm:"type:text;not null;default:TRY" json:"currency"`

	Source      Source `gorm:"type:text;not null" json:"source"`
	IsProcessed bool   `gorm:"not null;default:false" json:"is_processed"`

	ImageURL       string `gorm:"type:text" json:"image_url,omitempty"`
	ImageSizeBytes int64  `gorm:"not null;default:0" json:"image_size_bytes"`
	RawOcrText     string `gorm:"type:text" json:"raw_ocr_text,omitempty"`

	Notes string `gorm:"type:text" json:"notes,omitempty"`

	Items []ReceiptItem `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"items"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Receipt) TableName() string { return "receipts" }

// ReceiptItem is one line on a receipt. Category is an open string tag, not
// a foreign key; unknown values are stored verbatim.
type ReceiptItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ReceiptID snowflake.ID `gorm:"not null;index" json:"receipt_id"`

	ProductName string  `gorm:"type:text;not null" json:"product_name"`
	Quantity    float64 `gorm:"type:decimal(12,3);not null;default:1" json:"quantity"`
	UnitPrice   float64 `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TotalPrice  float64 `gorm:"type:decimal(12,2);not null" json:"total_price"`
	Category    string  `gorm:"type:text" json:"category,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ReceiptItem) TableName() string { return "receipt_items" }
