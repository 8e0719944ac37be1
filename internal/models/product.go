package models

// Product is one node of the catalog tree. Intermediate nodes ("90% shade",
// "reinforced") carry taxonomy only; a customer may only be offered nodes
// with Sellable set.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ParentID     string  `json:"parentId,omitempty"` // empty => root
	Sellable     bool    `json:"sellable"`
	Active       bool    `json:"active"`
	SizeText     string  `json:"sizeText,omitempty"` // parseable dimension text, e.g. "4x6"
	Alias        string  `json:"alias,omitempty"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
	WholesaleMin int     `json:"wholesaleMin,omitempty"`
}

// ProductLink is a marketplace listing for a sellable product. At most one
// link per product carries Preferred.
type ProductLink struct {
	ProductID   string `json:"productId"`
	URL         string `json:"url"`
	Marketplace string `json:"marketplace"`
	Preferred   bool   `json:"preferred"`
}

func (p *Product) IsRoot() bool {
	return p.ParentID == ""
}
