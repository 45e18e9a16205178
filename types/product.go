package types

// Product is an entry of the storefront catalog.
type Product struct {
	ID          ProductID `json:"id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	Reviews     int       `json:"reviews,omitempty"`
}
