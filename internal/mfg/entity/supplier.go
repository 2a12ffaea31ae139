package entity

import "time"

const (
	SupplierStatusActive   = "active"
	SupplierStatusInactive = "inactive"
)

// Supplier 供应商
type Supplier struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Code         string    `json:"code" gorm:"size:50;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:200;not null"`
	Subsidiary   string    `json:"subsidiary" gorm:"size:50;index"`
	Status       string    `json:"status" gorm:"size:20;not null;default:active"`
	ContactName  string    `json:"contact_name,omitempty" gorm:"size:100"`
	ContactEmail string    `json:"contact_email,omitempty" gorm:"size:200"`
	Currency     string    `json:"currency,omitempty" gorm:"size:10"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Supplier) TableName() string {
	return "mfg_suppliers"
}

func (s *Supplier) IsActive() bool {
	return s.Status == SupplierStatusActive
}
