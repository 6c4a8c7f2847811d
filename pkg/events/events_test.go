package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), SubjectPlanIssued, PlanEvent{PlanID: "p"}))
	assert.NoError(t, p.Close())
}

func TestConnectNATS_Unreachable(t *testing.T) {
	_, err := ConnectNATS("nats://127.0.0.1:1", 200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}
