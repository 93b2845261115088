// Package alert implements the AlertManager (C7): rule evaluation against a
// live metrics snapshot with per-rule cooldowns, bounded alert history, and
// independent multi-channel dispatch. Grounded on the teacher's
// resilience/degraded_mode.go bounded-state-behind-a-mutex idiom (the same
// "CRITICAL: bounded to prevent unbounded growth" discipline, applied here
// to alert history instead of pending writes).
package alert

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/observability"
)

// Condition is the closed set of metric tags a rule can evaluate against
// (spec §3's "condition tag from a closed set").
type Condition string

const (
	ConditionTaskFailureRate Condition = "task_failure_rate"
	ConditionMemoryPercent   Condition = "memory_percent"
	ConditionCPUPercent      Condition = "cpu_percent"
	ConditionQueueBacklog    Condition = "queue_backlog"
)

// Severity is the closed severity set.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Channel is the closed set of alert delivery channels.
type Channel string

const (
	ChannelLog     Channel = "LOG"
	ChannelConsole Channel = "CONSOLE"
	ChannelEmail   Channel = "EMAIL"
	ChannelSlack   Channel = "SLACK"
	ChannelWebhook Channel = "WEBHOOK"
)

// defaultHistoryRetention is how long fired alerts stay in history before
// cleanup (spec §4.7: cleanup >= 168h default).
const defaultHistoryRetention = 168 * time.Hour

// Rule is a monitoring rule: when Condition's current metric value crosses
// Threshold, fire, subject to Cooldown between firings.
type Rule struct {
	Name            string
	Condition       Condition
	Threshold       float64
	Window          time.Duration
	Severity        Severity
	Channels        []Channel
	Cooldown        time.Duration
	MessageTemplate string
	Enabled         bool
	LastTriggered   *time.Time
}

// Alert is an instantiated firing of a Rule.
type Alert struct {
	ID             string
	RuleName       string
	Severity       Severity
	Message        string
	Timestamp      time.Time
	Metadata       map[string]any
	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt *time.Time
}

// ChannelSender delivers a fired Alert over one channel. Failures on one
// channel never abort delivery on the others.
type ChannelSender interface {
	Send(alert Alert) error
}

// Manager is the AlertManager (C7).
type Manager struct {
	mu        sync.Mutex
	rules     map[string]*Rule
	history   []Alert
	retention time.Duration
	senders   map[Channel]ChannelSender
	idSeq     int64
	log       *zap.SugaredLogger
}

// NewManager returns a Manager pre-populated with the built-in default
// rules (spec §4.7: all defaults MUST be present in a fresh manager unless
// explicitly suppressed), wired to the given channel senders.
func NewManager(senders map[Channel]ChannelSender) *Manager {
	m := &Manager{
		rules:     make(map[string]*Rule),
		retention: defaultHistoryRetention,
		senders:   senders,
		log:       logging.Component("alert"),
	}
	for _, r := range defaultRules() {
		rule := r
		m.rules[rule.Name] = &rule
	}
	return m
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name: "task-failure-rate", Condition: ConditionTaskFailureRate, Threshold: 0.25,
			Severity: SeverityCritical, Channels: []Channel{ChannelLog, ChannelEmail},
			Cooldown: 15 * time.Minute, Enabled: true,
			MessageTemplate: "task failure rate %.0f%% exceeds threshold",
		},
		{
			Name: "high-memory", Condition: ConditionMemoryPercent, Threshold: 0.85,
			Severity: SeverityWarning, Channels: []Channel{ChannelLog},
			Cooldown: 10 * time.Minute, Enabled: true,
			MessageTemplate: "memory usage %.0f%% exceeds threshold",
		},
		{
			Name: "high-cpu", Condition: ConditionCPUPercent, Threshold: 0.85,
			Severity: SeverityWarning, Channels: []Channel{ChannelLog},
			Cooldown: 10 * time.Minute, Enabled: true,
			MessageTemplate: "cpu usage %.0f%% exceeds threshold",
		},
		{
			Name: "queue-backlog", Condition: ConditionQueueBacklog, Threshold: 100,
			Severity: SeverityError, Channels: []Channel{ChannelLog, ChannelConsole},
			Cooldown: 5 * time.Minute, Enabled: true,
			MessageTemplate: "queue backlog %.0f exceeds threshold",
		},
	}
}

// AddRule registers or replaces a custom rule.
func (m *Manager) AddRule(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule := r
	m.rules[rule.Name] = &rule
}

// Evaluate iterates enabled rules against the given metrics snapshot
// (condition -> current value), firing and dispatching any rule whose
// threshold is crossed and whose cooldown has elapsed.
func (m *Manager) Evaluate(now time.Time, metrics map[Condition]float64) []Alert {
	m.mu.Lock()
	var fired []*Rule
	for _, rule := range m.rules {
		if !rule.Enabled {
			continue
		}
		if rule.LastTriggered != nil && now.Sub(*rule.LastTriggered) < rule.Cooldown {
			continue
		}
		value, ok := metrics[rule.Condition]
		if !ok || value <= rule.Threshold {
			continue
		}
		rule.LastTriggered = &now
		fired = append(fired, rule)
	}
	m.mu.Unlock()

	var alerts []Alert
	for _, rule := range fired {
		alert := m.record(now, rule, metrics[rule.Condition])
		m.dispatch(rule, alert)
		alerts = append(alerts, alert)
		observability.AlertsFired.WithLabelValues(rule.Name, string(rule.Severity)).Inc()
	}
	return alerts
}

func (m *Manager) record(now time.Time, rule *Rule, value float64) Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.idSeq++
	alert := Alert{
		ID:        formatAlertID(m.idSeq),
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		Message:   formatMessage(rule.Condition, rule.MessageTemplate, value),
		Timestamp: now,
		Metadata:  map[string]any{"value": value, "threshold": rule.Threshold},
	}
	m.history = append(m.history, alert)
	m.pruneLocked(now)
	return alert
}

func (m *Manager) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.retention)
	kept := m.history[:0]
	for _, a := range m.history {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	m.history = kept
}

func (m *Manager) dispatch(rule *Rule, alert Alert) {
	for _, ch := range rule.Channels {
		sender, ok := m.senders[ch]
		if !ok {
			continue
		}
		if err := sender.Send(alert); err != nil {
			m.log.Warnw("alert channel send failed", "channel", ch, "rule", rule.Name, "error", err)
		}
	}
}

// Acknowledge marks alertID acknowledged by user. Already-acknowledged
// alerts are a no-op (spec §4.7: "duplicate acknowledgements are no-ops").
func (m *Manager) Acknowledge(alertID, user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].ID != alertID {
			continue
		}
		if m.history[i].Acknowledged {
			return true
		}
		now := time.Now().UTC()
		m.history[i].Acknowledged = true
		m.history[i].AcknowledgedBy = user
		m.history[i].AcknowledgedAt = &now
		return true
	}
	return false
}

// History returns a copy of the bounded alert history.
func (m *Manager) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.history))
	copy(out, m.history)
	return out
}

func formatAlertID(seq int64) string {
	return "alert-" + strconv.FormatInt(seq, 10)
}

// formatMessage renders a rule's message template against its fired value.
// Fraction-valued conditions (percentages, stored 0..1) are scaled to a
// human percentage; count-valued conditions (queue backlog) are not.
func formatMessage(cond Condition, template string, value float64) string {
	display := value
	switch cond {
	case ConditionTaskFailureRate, ConditionMemoryPercent, ConditionCPUPercent:
		display = value * 100
	}
	if template == "" {
		return fmt.Sprintf("value %.2f exceeded threshold", display)
	}
	return fmt.Sprintf(template, display)
}
