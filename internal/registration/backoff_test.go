package registration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{step: 20 * time.Millisecond}
	assert.Equal(t, 20*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 40*time.Millisecond, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 20*time.Millisecond, b.NextBackOff())

	zero := &linearBackOff{}
	assert.Equal(t, time.Duration(0), zero.NextBackOff())
}
