package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyMonitorIsHealthy(t *testing.T) {
	m := NewMonitor()
	status := m.Evaluate()
	assert.True(t, status.IsHealthy())
	assert.Empty(t, status.Checks)
}

func TestAllChecksPassing(t *testing.T) {
	m := NewMonitor()
	m.RegisterCheck("nats", func() error { return nil })
	m.RegisterCheck("store", func() error { return nil })

	status := m.Evaluate()
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "ok", status.Checks["nats"])
	assert.Equal(t, "ok", status.Checks["store"])
}

func TestOneFailingCheckMakesUnhealthy(t *testing.T) {
	m := NewMonitor()
	m.RegisterCheck("nats", func() error { return errors.New("connection lost") })
	m.RegisterCheck("store", func() error { return nil })

	status := m.Evaluate()
	assert.False(t, status.IsHealthy())
	assert.Equal(t, "connection lost", status.Checks["nats"])
	assert.Equal(t, "ok", status.Checks["store"])
}

func TestRegisterCheckReplaces(t *testing.T) {
	m := NewMonitor()
	m.RegisterCheck("nats", func() error { return errors.New("down") })
	m.RegisterCheck("nats", func() error { return nil })

	assert.True(t, m.Evaluate().IsHealthy())
}
