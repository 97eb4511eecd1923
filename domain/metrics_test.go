package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeltaFor(t *testing.T) {
	assert.Equal(t, MetricsDelta{Products: 1}, DeltaFor(ItemKindProduct, 1))
	assert.Equal(t, MetricsDelta{Auctions: -1}, DeltaFor(ItemKindAuction, -1))
	assert.Equal(t, MetricsDelta{Products: -2, Auctions: 3}, MetricsDelta{Products: 2, Auctions: -3}.Negate())
	assert.EqualValues(t, 1, MetricsDelta{Products: 2, Auctions: -1}.Items())
	assert.True(t, MetricsDelta{}.IsZero())
	assert.True(t, ItemKindAuction.Valid())
	assert.False(t, ItemKind("service").Valid())
}

func TestApplyOwnCountsTowardTotals(t *testing.T) {
	var m Metrics
	now := time.Unix(100, 0)

	m.ApplyOwn(MetricsDelta{Products: 2, Auctions: 1}, now)
	m.ApplyTotal(MetricsDelta{Auctions: 4}, now)

	assert.EqualValues(t, 2, m.ProductCount)
	assert.EqualValues(t, 1, m.AuctionCount)
	assert.EqualValues(t, 2, m.TotalProductCount)
	assert.EqualValues(t, 5, m.TotalAuctionCount)
	assert.EqualValues(t, 7, m.TotalItemCount)
	assert.Equal(t, now, m.LastUpdated)
	assert.Equal(t, MetricsDelta{Products: 2, Auctions: 5}, m.Totals())
}

func TestProductMembershipRoundTrip(t *testing.T) {
	var m Metrics
	m.AddProduct("p1")
	m.AddProduct("p1")
	assert.Equal(t, []string{"p1"}, m.ProductIDs)
	assert.True(t, m.HasProduct("p1"))

	m.RemoveProduct("p1")
	assert.False(t, m.HasProduct("p1"))
	assert.Empty(t, m.ProductIDs)
}
