// internal/crawler/detect_test.go
package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("returns create when no existing content", func(t *testing.T) {
		assert.Equal(t, ActionCreate, Classify(nil, "# AI Rules"))
	})

	t.Run("returns unchanged for byte-identical content", func(t *testing.T) {
		for _, content := range []string{"", "# AI Rules", "line1\nline2\n", strings.Repeat("x", 100_000)} {
			existing := content
			assert.Equal(t, ActionUnchanged, Classify(&existing, content))
		}
	})

	t.Run("returns update when content differs", func(t *testing.T) {
		existing := "# AI Rules v1"
		assert.Equal(t, ActionUpdate, Classify(&existing, "# AI Rules v2"))
	})

	t.Run("only byte content decides, not superficial similarity", func(t *testing.T) {
		existing := "content\n"
		assert.Equal(t, ActionUpdate, Classify(&existing, "content"))

		existing = "café" // precomposed é
		assert.Equal(t, ActionUpdate, Classify(&existing, "café")) // e + combining accent
	})

	t.Run("empty existing content is still existing", func(t *testing.T) {
		existing := ""
		assert.Equal(t, ActionUpdate, Classify(&existing, "now has content"))
		assert.Equal(t, ActionUnchanged, Classify(&existing, ""))
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, Fingerprint("hello"), Fingerprint("hello"))
	})

	t.Run("differs for different content", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("hello"), Fingerprint("hello "))
	})

	t.Run("is a 256-bit hex digest", func(t *testing.T) {
		assert.Len(t, Fingerprint("anything"), 64)
	})
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "create", ActionCreate.String())
	assert.Equal(t, "update", ActionUpdate.String())
	assert.Equal(t, "unchanged", ActionUnchanged.String())
}
