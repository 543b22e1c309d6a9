package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "star_fee_routing_build_info",
			Help: "Build information of the fee-routing cranker",
		},
		[]string{"version", "commit", "date"},
	)

	CrankPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "star_fee_routing_crank_pages_total",
			Help: "Total number of distribution pages cranked",
		},
		[]string{"status"},
	)

	CrankPageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "star_fee_routing_crank_page_duration_seconds",
			Help:    "Duration of single distribution page invocations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
	)

	QuoteFeesClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_fee_routing_quote_fees_claimed_total",
			Help: "Total quote fees claimed from honorary positions, smallest units",
		},
	)

	InvestorPayoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_fee_routing_investor_payouts_total",
			Help: "Total quote paid to investors, smallest units",
		},
	)

	CreatorPayoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_fee_routing_creator_payouts_total",
			Help: "Total quote paid to creators at day close, smallest units",
		},
	)

	DaysClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_fee_routing_days_closed_total",
			Help: "Total number of distribution days closed",
		},
	)

	LockedResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "star_fee_routing_locked_resolutions_total",
			Help: "Total number of vesting ledger locked-amount resolutions",
		},
		[]string{"status"},
	)
)
