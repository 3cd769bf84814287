package stock

import "time"

// UnitOfMeasure values accepted by the product catalog.
const (
	UnitBox   = "Box"
	UnitGram  = "Gram"
	UnitPiece = "Piece"
	UnitKilo  = "Kilo"
	UnitLiter = "Liter"
	UnitPack  = "Pack"
)

type Product struct {
	ID            string    `json:"productId"`
	Name          string    `json:"name"`
	UnitPrice     float64   `json:"unitPrice"`
	Quantity      int       `json:"quantity"`
	UnitOfMeasure string    `json:"unitOfMeasure"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Line struct {
	ProductID string
	Quantity  int
}

type DepletedLine struct {
	ProductID string
	Requested int
	Available int
}
