package domain

import "github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"

// AlertSeverity grades operator alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Alert is an operator-facing notification emitted by the core,
// e.g. when the kill switch fires or a circuit opens.
type Alert struct {
	Severity AlertSeverity   `json:"severity"`
	Source   string          `json:"source"`
	Message  string          `json:"message"`
	TsUnixM  quant.TimeStamp `json:"ts"`
}

// Alerter delivers alerts to an external channel (pager, chat, log).
// Implementations must not block and must not panic; delivery is
// best-effort.
type Alerter interface {
	Notify(alert Alert)
}
