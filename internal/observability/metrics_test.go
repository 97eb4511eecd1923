package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("catalog_test")

	c.RecordMutation("create_category", nil)
	c.RecordMutation("create_category", errors.New("boom"))
	c.RecordItemEvent("item.assigned", nil)
	c.ObserveRequest("GET", "/api/v1/categories", 404, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Mutations.WithLabelValues("create_category", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Mutations.WithLabelValues("create_category", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ItemEvents.WithLabelValues("item.assigned", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/v1/categories", "4xx")))
}

func TestRecordAuditReplacesPreviousRun(t *testing.T) {
	c := NewCollector("catalog_test")

	c.RecordAudit(map[string]int{"totals": 2, "leaf": 1})
	c.RecordAudit(map[string]int{"totals": 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.AuditViolations.WithLabelValues("totals")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.AuditViolations))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.AuditRuns))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("catalog_test")
	b := NewCollector("catalog_test")
	a.RecordMutation("set_active", nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Mutations.WithLabelValues("set_active", "ok")))
}
