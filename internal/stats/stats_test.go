package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCompiled()
	c.RecordCompiled()
	c.RecordFailed()
	c.RecordRejected()

	if got := testutil.ToFloat64(c.Compiled); got != 2 {
		t.Errorf("Compiled = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Failed); got != 1 {
		t.Errorf("Failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Rejected); got != 1 {
		t.Errorf("Rejected = %v, want 1", got)
	}
}
