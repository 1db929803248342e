package domain

import "encoding/json"

// ProductInventory is the flat body posted to the products endpoint.
type ProductInventory struct {
	BeginningInventory float64 `json:"Beginning Inventory"`
	COGS               float64 `json:"COGS"`
	EndingInventory    float64 `json:"Ending Inventory"`
	Sales              float64 `json:"Sales"`
	TargetTurnover     float64 `json:"Target Turnover"`
	ID                 string  `json:"id"`
	Period             string  `json:"period"`
}

// ParsedFile is what an uploaded inventory file yields. ProductName is empty when
// the file carried the fields directly instead of under a product key.
type ParsedFile struct {
	ProductName        string
	BeginningInventory float64
	COGS               float64
	EndingInventory    float64
	Sales              float64
	TargetTurnover     float64
	Period             string
	ID                 string
}

type ProductUploadResponse struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}
