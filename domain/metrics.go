package domain

import (
	"slices"
	"time"
)

// Metrics holds the item counters of a category.
// Own counts cover directly assigned items; totals also include every descendant.
type Metrics struct {
	ProductCount      int64     `json:"product_count"`
	AuctionCount      int64     `json:"auction_count"`
	TotalProductCount int64     `json:"total_product_count"`
	TotalAuctionCount int64     `json:"total_auction_count"`
	TotalItemCount    int64     `json:"total_item_count"`
	ProductIDs        []string  `json:"product_ids"`
	LastUpdated       time.Time `json:"last_updated"`
}

// MetricsDelta is a signed change of item counts.
type MetricsDelta struct {
	Products int64 `json:"products"`
	Auctions int64 `json:"auctions"`
}

// DeltaFor returns the delta for one item of the given kind; sign is +1 or -1.
func DeltaFor(kind ItemKind, sign int64) MetricsDelta {
	if kind == ItemKindAuction {
		return MetricsDelta{Auctions: sign}
	}
	return MetricsDelta{Products: sign}
}

// IsZero reports whether the delta changes nothing.
func (d MetricsDelta) IsZero() bool {
	return d.Products == 0 && d.Auctions == 0
}

// Items is the change of the combined item total.
func (d MetricsDelta) Items() int64 {
	return d.Products + d.Auctions
}

// Negate flips the sign of both counts.
func (d MetricsDelta) Negate() MetricsDelta {
	return MetricsDelta{Products: -d.Products, Auctions: -d.Auctions}
}

// ApplyOwn adds the delta to the own counts and to the totals, since a node's
// own items are part of its subtree.
func (m *Metrics) ApplyOwn(d MetricsDelta, now time.Time) {
	m.ProductCount += d.Products
	m.AuctionCount += d.Auctions
	m.ApplyTotal(d, now)
}

// ApplyTotal adds the delta to the subtree totals only.
func (m *Metrics) ApplyTotal(d MetricsDelta, now time.Time) {
	m.TotalProductCount += d.Products
	m.TotalAuctionCount += d.Auctions
	m.TotalItemCount += d.Items()
	m.LastUpdated = now
}

// AddProduct records a directly assigned product id.
func (m *Metrics) AddProduct(productID string) {
	if !slices.Contains(m.ProductIDs, productID) {
		m.ProductIDs = append(m.ProductIDs, productID)
	}
}

// RemoveProduct forgets a directly assigned product id.
func (m *Metrics) RemoveProduct(productID string) {
	m.ProductIDs = slices.DeleteFunc(m.ProductIDs, func(id string) bool { return id == productID })
}

// HasProduct reports product membership.
func (m *Metrics) HasProduct(productID string) bool {
	return slices.Contains(m.ProductIDs, productID)
}

// Totals returns the subtree totals as a delta, used when a subtree changes ancestors.
func (m *Metrics) Totals() MetricsDelta {
	return MetricsDelta{Products: m.TotalProductCount, Auctions: m.TotalAuctionCount}
}
