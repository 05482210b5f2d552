package draftengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orderflow/orderflow/internal/coreerr"
)

func TestCanTransition_AllowedEdge(t *testing.T) {
	assert.True(t, CanTransition(StatusNew, StatusExtracted))
	assert.True(t, CanTransition(StatusReady, StatusApproved))
	assert.True(t, CanTransition(StatusError, StatusPushing))
}

func TestCanTransition_DisallowedEdge(t *testing.T) {
	assert.False(t, CanTransition(StatusNew, StatusApproved))
	assert.False(t, CanTransition(StatusPushed, StatusPushing))
}

func TestCanTransition_SameStateNeverAllowed(t *testing.T) {
	assert.False(t, CanTransition(StatusReady, StatusReady))
}

func TestCheckTransition_ReturnsStateMachineViolation(t *testing.T) {
	err := CheckTransition(StatusNew, StatusApproved)
	kind, ok := coreerr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, coreerr.StateMachineViolation, kind)
}

func TestCheckTransition_AllowedReturnsNil(t *testing.T) {
	assert.NoError(t, CheckTransition(StatusNew, StatusExtracted))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusRejected))
	assert.True(t, IsTerminal(StatusPushed))
	assert.False(t, IsTerminal(StatusReady))
}
