package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the back office. A nil *Metrics is a no-op.
type Metrics struct {
	HTTPDuration *prometheus.HistogramVec

	SalesRecorded *prometheus.CounterVec
	FeeAmount     *prometheus.CounterVec

	AssignmentOutcomes *prometheus.CounterVec
	TransfersApplied   prometheus.Counter
	TransferFailures   prometheus.Counter

	MachineMoves *prometheus.CounterVec
}

// New registers every back-office metric on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route, method and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method", "status"}),

		SalesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_sales_recorded_total",
			Help: "Total sales recorded by payment method",
		}, []string{"payment_method"}),

		FeeAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_sale_fee_amount_total",
			Help: "Sum of fees charged on recorded sales by payment method",
		}, []string{"payment_method"}),

		AssignmentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_tax_block_assignments_total",
			Help: "Tax block assignment requests by outcome",
		}, []string{"outcome"}), // assigned, unchanged, transfer_scheduled, transferred

		TransfersApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "backoffice_tax_block_transfers_applied_total",
			Help: "Scheduled tax block transfers applied",
		}),

		TransferFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "backoffice_tax_block_transfer_failures_total",
			Help: "Scheduled tax block transfers that failed to apply",
		}),

		MachineMoves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_machine_moves_total",
			Help: "Machine status changes by target status",
		}, []string{"to_status"}),
	}
}

// ObserveSale records a sale and its fee
func (m *Metrics) ObserveSale(method string, fee float64) {
	if m != nil {
		m.SalesRecorded.WithLabelValues(method).Inc()
		m.FeeAmount.WithLabelValues(method).Add(fee)
	}
}

// IncrementAssignment records the outcome of an assignment request
func (m *Metrics) IncrementAssignment(outcome string) {
	if m != nil {
		m.AssignmentOutcomes.WithLabelValues(outcome).Inc()
	}
}

// IncrementTransfersApplied adds n applied transfers
func (m *Metrics) IncrementTransfersApplied(n int) {
	if m != nil && n > 0 {
		m.TransfersApplied.Add(float64(n))
	}
}

func (m *Metrics) IncrementTransferFailures() {
	if m != nil {
		m.TransferFailures.Inc()
	}
}

func (m *Metrics) IncrementMachineMove(toStatus string) {
	if m != nil {
		m.MachineMoves.WithLabelValues(toStatus).Inc()
	}
}

// ObserveRequest records one HTTP request duration
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

// Middleware times every request against its route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
