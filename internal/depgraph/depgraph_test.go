package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependency_RejectsSelfCycle(t *testing.T) {
	g := NewGraph(24)
	err := g.AddDependency(Dependency{TaskID: 1, DependsOn: []int64{1}, Type: Requires})
	assert.Error(t, err)
}

func TestAddDependency_RejectsIndirectCycleWithoutMutating(t *testing.T) {
	g := NewGraph(24)
	require.NoError(t, g.AddDependency(Dependency{TaskID: 2, DependsOn: []int64{1}, Type: Requires}))
	require.NoError(t, g.AddDependency(Dependency{TaskID: 3, DependsOn: []int64{2}, Type: Requires}))

	err := g.AddDependency(Dependency{TaskID: 1, DependsOn: []int64{3}, Type: Requires})
	assert.Error(t, err)

	// Graph must be unchanged: task 1 still has no declared dependency.
	assert.True(t, g.CanExecute(1))
}

func TestCanExecute_RequiresAllCompleted(t *testing.T) {
	g := NewGraph(24)
	require.NoError(t, g.AddDependency(Dependency{TaskID: 2, DependsOn: []int64{1}, Type: Requires}))

	assert.False(t, g.CanExecute(2))
	g.RecordStatus(1, StatusCompleted)
	assert.True(t, g.CanExecute(2))
}

func TestCanExecute_RequiresAnyOneCompletedSuffices(t *testing.T) {
	g := NewGraph(24)
	require.NoError(t, g.AddDependency(Dependency{TaskID: 3, DependsOn: []int64{1, 2}, Type: RequiresAny}))

	g.RecordStatus(1, StatusFailed)
	assert.False(t, g.CanExecute(3))
	g.RecordStatus(2, StatusCompleted)
	assert.True(t, g.CanExecute(3))
}

func TestCanExecute_OptionalAcceptsTerminalStates(t *testing.T) {
	g := NewGraph(24)
	require.NoError(t, g.AddDependency(Dependency{TaskID: 2, DependsOn: []int64{1}, Type: Optional}))

	g.RecordStatus(1, StatusFailed)
	assert.True(t, g.CanExecute(2))
}

func TestCanExecute_ConditionalEvaluatesCondition(t *testing.T) {
	g := NewGraph(24)
	require.NoError(t, g.AddDependency(Dependency{
		TaskID:    2,
		DependsOn: []int64{1},
		Type:      Conditional,
		Condition: func(m map[int64]Status) bool { return m[1] == StatusCompleted },
	}))
	g.RecordStatus(1, StatusCompleted)
	assert.True(t, g.CanExecute(2))
}

func TestReadyTasks_OnlyReturnsSatisfied(t *testing.T) {
	g := NewGraph(24)
	require.NoError(t, g.AddDependency(Dependency{TaskID: 2, DependsOn: []int64{1}, Type: Requires}))
	require.NoError(t, g.AddDependency(Dependency{TaskID: 3, DependsOn: []int64{1}, Type: Requires}))

	assert.Empty(t, g.ReadyTasks())
	g.RecordStatus(1, StatusCompleted)
	assert.Equal(t, []int64{2, 3}, g.ReadyTasks())
}

func TestExecutionOrder_DeterministicTopologicalSort(t *testing.T) {
	g := NewGraph(24)
	require.NoError(t, g.AddDependency(Dependency{TaskID: 3, DependsOn: []int64{2}, Type: Requires}))
	require.NoError(t, g.AddDependency(Dependency{TaskID: 2, DependsOn: []int64{1}, Type: Requires}))

	order := g.ExecutionOrder()
	assert.Equal(t, []int64{1, 2, 3}, order)
}
