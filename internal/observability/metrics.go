package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	discoveryDatagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squirrel",
			Subsystem: "discovery",
			Name:      "datagrams_total",
			Help:      "Discovery datagrams sent and received, by message type.",
		},
		[]string{"direction", "type"},
	)
	peersDiscovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "squirrel",
			Name:      "peers_discovered_total",
			Help:      "Distinct peers surfaced by broadcast sessions.",
		},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squirrel",
			Name:      "transfers_total",
			Help:      "File transfer sessions, by direction and result.",
		},
		[]string{"direction", "result"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squirrel",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Decoded file bytes moved by successful transfers.",
		},
		[]string{"direction"},
	)
	mailboxRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squirrel",
			Subsystem: "mailbox",
			Name:      "records_total",
			Help:      "Mailbox records written and read, by channel.",
		},
		[]string{"channel", "op"},
	)
	errorsReported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "squirrel",
			Name:      "errors_total",
			Help:      "Errors posted to the report queue, by kind.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			discoveryDatagrams,
			peersDiscovered,
			transfers,
			transferBytes,
			mailboxRecords,
			errorsReported,
		)
	})
}

func RecordDatagram(direction, msgType string) {
	RegisterMetrics()
	if msgType == "" {
		msgType = "unknown"
	}
	discoveryDatagrams.WithLabelValues(direction, msgType).Inc()
}

func RecordPeer() {
	RegisterMetrics()
	peersDiscovered.Inc()
}

func RecordTransfer(direction string, ok bool, bytes int) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "failed"
	}
	transfers.WithLabelValues(direction, result).Inc()
	if ok && bytes > 0 {
		transferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

func RecordMailbox(channel, op string) {
	RegisterMetrics()
	mailboxRecords.WithLabelValues(channel, op).Inc()
}

func RecordError(kind string) {
	RegisterMetrics()
	errorsReported.WithLabelValues(kind).Inc()
}
