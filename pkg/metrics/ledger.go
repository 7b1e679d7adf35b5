package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation check labels.
const (
	CheckBalanceIdentity = "balance_identity"
	CheckPayoutTotals    = "payout_totals"
	CheckDuplicateClaims = "duplicate_claims"
	CheckPaidLinks       = "paid_links"
	CheckOrphanItems     = "orphan_items"
)

// LedgerMetrics counts payout outcomes and reconciliation findings.
type LedgerMetrics struct {
	payoutsCreated  prometheus.Counter
	payoutReplays   prometheus.Counter
	payoutConflicts prometheus.Counter
	paidCents       prometheus.Counter
	reversals       *prometheus.CounterVec
	mismatches      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on reg. A nil registerer yields
// a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		payoutsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payouts_created_total",
			Help: "Payout batches committed.",
		}),
		payoutReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payout_replays_total",
			Help: "Payout requests answered from the idempotency ledger.",
		}),
		payoutConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payout_conflicts_total",
			Help: "Payout requests rejected because items were not pending.",
		}),
		paidCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_paid_amount_cents_total",
			Help: "Sum of committed payout amounts in minor units.",
		}),
		reversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reversals_total",
			Help: "Reversals applied, by kind.",
		}, []string{"kind"}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconciliation_mismatch_total",
			Help: "Reconciliation checks that failed, by check.",
		}, []string{"check"}),
	}
	reg.MustRegister(m.payoutsCreated, m.payoutReplays, m.payoutConflicts, m.paidCents, m.reversals, m.mismatches)
	return m
}

func (m *LedgerMetrics) PayoutCreated(amountCents int64) {
	if m == nil || m.payoutsCreated == nil {
		return
	}
	m.payoutsCreated.Inc()
	if amountCents > 0 {
		m.paidCents.Add(float64(amountCents))
	}
}

func (m *LedgerMetrics) PayoutReplayed() {
	if m == nil || m.payoutReplays == nil {
		return
	}
	m.payoutReplays.Inc()
}

func (m *LedgerMetrics) PayoutConflict() {
	if m == nil || m.payoutConflicts == nil {
		return
	}
	m.payoutConflicts.Inc()
}

// Reversal counts a reversal of the given kind (line_item or payout).
func (m *LedgerMetrics) Reversal(kind string) {
	if m == nil || m.reversals == nil {
		return
	}
	m.reversals.WithLabelValues(normalizeLabel(kind, "unknown")).Inc()
}

// ReconciliationMismatch counts one failed check.
func (m *LedgerMetrics) ReconciliationMismatch(check string) {
	if m == nil || m.mismatches == nil {
		return
	}
	m.mismatches.WithLabelValues(normalizeLabel(check, "unknown")).Inc()
}
