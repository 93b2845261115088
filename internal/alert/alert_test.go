package alert

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_HasDefaultRules(t *testing.T) {
	m := NewManager(nil)
	for _, name := range []string{"task-failure-rate", "high-memory", "high-cpu", "queue-backlog"} {
		_, ok := m.rules[name]
		assert.True(t, ok, "expected default rule %s", name)
	}
}

func TestEvaluate_FiresWhenThresholdCrossed(t *testing.T) {
	m := NewManager(nil)
	alerts := m.Evaluate(time.Now(), map[Condition]float64{ConditionCPUPercent: 0.95})
	require.Len(t, alerts, 1)
	assert.Equal(t, "high-cpu", alerts[0].RuleName)
}

func TestEvaluate_RespectsCooldown(t *testing.T) {
	m := NewManager(nil)
	now := time.Now()
	first := m.Evaluate(now, map[Condition]float64{ConditionCPUPercent: 0.95})
	require.Len(t, first, 1)

	second := m.Evaluate(now.Add(time.Minute), map[Condition]float64{ConditionCPUPercent: 0.95})
	assert.Empty(t, second)

	third := m.Evaluate(now.Add(11*time.Minute), map[Condition]float64{ConditionCPUPercent: 0.95})
	assert.Len(t, third, 1)
}

func TestAcknowledge_DuplicateIsNoop(t *testing.T) {
	m := NewManager(nil)
	alerts := m.Evaluate(time.Now(), map[Condition]float64{ConditionQueueBacklog: 6000})
	require.Len(t, alerts, 1)

	assert.True(t, m.Acknowledge(alerts[0].ID, "alice"))
	assert.True(t, m.Acknowledge(alerts[0].ID, "bob"))

	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].AcknowledgedBy)
}

type failingSender struct{ called bool }

func (f *failingSender) Send(Alert) error { f.called = true; return errors.New("boom") }

type okSender struct{ called bool }

func (o *okSender) Send(Alert) error { o.called = true; return nil }

func TestDispatch_OneChannelFailureDoesNotBlockOthers(t *testing.T) {
	failing := &failingSender{}
	ok := &okSender{}
	m := NewManager(map[Channel]ChannelSender{ChannelLog: failing, ChannelSlack: ok})
	m.AddRule(Rule{
		Name: "custom", Condition: ConditionCPUPercent, Threshold: 0.5,
		Severity: SeverityWarning, Channels: []Channel{ChannelLog, ChannelSlack}, Enabled: true,
	})

	alerts := m.Evaluate(time.Now(), map[Condition]float64{ConditionCPUPercent: 0.9})
	require.Len(t, alerts, 1)
	assert.True(t, failing.called)
	assert.True(t, ok.called)
}
