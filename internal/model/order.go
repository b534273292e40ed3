package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShippingStatus is the closed vocabulary of shipment states an order can
// be in. Values match what the extraction keyword table produces.
type ShippingStatus string

const (
	StatusUnknown          ShippingStatus = "unknown"
	StatusShipped          ShippingStatus = "shipped"
	StatusInTransit        ShippingStatus = "in_transit"
	StatusDelivered        ShippingStatus = "delivered"
	StatusDelayed          ShippingStatus = "delayed"
	StatusCancelled        ShippingStatus = "cancelled"
	StatusPartial          ShippingStatus = "partial"
	StatusInvoiceGenerated ShippingStatus = "invoice_generated"
)

// Order is a purchase order as persisted in the order store. Orders are
// created by the order-placement flow; the pipeline only reads and updates
// them.
type Order struct {
	ID                int64          `db:"id"`
	ReferenceNumber   string         `db:"reference_number"`
	VendorName        string         `db:"vendor_name"`
	ShippingStatus    ShippingStatus `db:"shipping_status"`
	TrackingNumber    string         `db:"tracking_number"`
	CurrentLocation   string         `db:"current_location"`
	EstimatedDelivery *time.Time     `db:"estimated_delivery"`
	HasInvoice        bool           `db:"has_invoice"`
	InvoiceReceivedAt *time.Time     `db:"invoice_received_at"`
	LastStatusUpdate  time.Time      `db:"last_status_update"`
	StatusHistory     []StatusHistoryEntry
	CreatedAt         time.Time `db:"created_at"`
}

// StatusHistoryEntry is one append-only record of a status change and where
// it came from.
type StatusHistoryEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    ShippingStatus `json:"status"`
	Source    string         `json:"source"`
}

// Invoice is created when an invoice-bearing attachment arrives for an
// order.
type Invoice struct {
	ID            string          `db:"id"`
	OrderID       int64           `db:"order_id"`
	InvoiceNumber string          `db:"invoice_number"`
	Amount        decimal.Decimal `db:"amount"`
	FilePath      string          `db:"file_path"`
	FileName      string          `db:"file_name"`
	ReceivedAt    time.Time       `db:"received_at"`
}

// OrderUpdate carries the field changes the reconciler applies to an order
// within a single transaction. Zero-valued fields are left untouched.
type OrderUpdate struct {
	ShippingStatus    ShippingStatus
	TrackingNumber    string
	CurrentLocation   string
	EstimatedDelivery *time.Time
	StatusNotes       string
}
