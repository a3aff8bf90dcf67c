package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_total",
		Help: "Completed checkouts by payment method.",
	}, []string{"method"})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_webhook_events_total",
		Help: "Gateway webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	stockMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_movements_total",
		Help: "Stock movements by kind.",
	}, []string{"kind"})

	refundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_refunds_total",
		Help: "Refunds recorded.",
	})
)
