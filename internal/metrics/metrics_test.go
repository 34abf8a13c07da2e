package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncTransition("approve")
	m.IncTransition("approve")
	m.IncCodeVerification("code_incorrect")
	m.IncConflict()
	m.SetRequestsByStatus("pending", 7)
	m.ObserveApproval(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodeVerifications.WithLabelValues("code_incorrect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.RequestsByStatus.WithLabelValues("pending")))
}

func TestApprovalOutcomeHelpListsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	outcomes := []string{ApprovalSuccess, ApprovalFailure, ApprovalConflict, ApprovalRefused}
	for _, o := range outcomes {
		m.IncApproval(o)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	var help string
	for _, mf := range families {
		if mf.GetName() == "membership_approvals_total" {
			help = mf.GetHelp()
			assert.Len(t, mf.GetMetric(), len(outcomes))
		}
	}
	require.NotEmpty(t, help)
	for _, o := range outcomes {
		assert.Contains(t, help, o)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncTransition("pay")
		m.IncApproval(ApprovalSuccess)
		m.ObserveHTTP("/x", "200", time.Now())
	})
}
