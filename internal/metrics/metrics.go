// Package metrics содержит Prometheus-метрики сервиса гермес.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusCheckRuns считает запуски цикла сверки статусов писем.
	StatusCheckRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hermes_status_check_runs_total",
		Help: "Number of letter status reconciliation runs.",
	})

	// LettersChecked считает письма, опрошенные во внешней почтовой системе.
	LettersChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hermes_letters_checked_total",
		Help: "Number of pending letters checked against the mail system.",
	})

	// LettersUpdated считает письма, сменившие статус по результатам сверки.
	LettersUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hermes_letters_updated_total",
		Help: "Number of letters whose status changed during reconciliation.",
	})

	// LettersMailed считает письма, достигшие конечного статуса shipped.
	LettersMailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hermes_letters_mailed_total",
		Help: "Number of letters that reached the shipped status.",
	})

	// GatewayErrors считает ошибки внешних шлюзов по имени шлюза.
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_gateway_errors_total",
		Help: "Number of failed calls to external gateways.",
	}, []string{"gateway"})

	// LettersCreated считает созданные письма по типу отправления.
	LettersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_letters_created_total",
		Help: "Number of letters created, by mail type.",
	}, []string{"mail_type"})

	// OrdersCreated считает созданные заказы.
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hermes_orders_created_total",
		Help: "Number of fulfillment orders created.",
	})
)
