// internal/crawler/gate_test.go
package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmit(t *testing.T) {
	t.Run("admits at and above the threshold", func(t *testing.T) {
		assert.True(t, Admit(50, 50))
		assert.True(t, Admit(51, 50))
		assert.True(t, Admit(200, 50))
	})

	t.Run("rejects below the threshold", func(t *testing.T) {
		assert.False(t, Admit(49, 50))
		assert.False(t, Admit(0, 50))
	})

	t.Run("boundary holds for any threshold", func(t *testing.T) {
		for _, threshold := range []int{0, 1, 10, 50, 1000} {
			assert.True(t, Admit(threshold, threshold), "admit(t, t) must be true for t=%d", threshold)
			assert.False(t, Admit(threshold-1, threshold), "admit(t-1, t) must be false for t=%d", threshold)
		}
	})

	t.Run("zero threshold admits everything", func(t *testing.T) {
		assert.True(t, Admit(0, 0))
	})
}
