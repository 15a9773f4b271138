package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURLResolver(t *testing.T) {
	r := NewBaseURLResolver("http://localhost:8780/artifacts/")

	t.Run("joins key onto base", func(t *testing.T) {
		url, err := r.Resolve("shots/ex_1/step-2.png")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8780/artifacts/shots/ex_1/step-2.png", url)
	})

	t.Run("escapes awkward characters", func(t *testing.T) {
		url, err := r.Resolve("shots/step 2.png")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8780/artifacts/shots/step%202.png", url)
	})

	t.Run("empty key is an error", func(t *testing.T) {
		_, err := r.Resolve("")
		assert.Error(t, err)
	})

	t.Run("unconfigured base is an error", func(t *testing.T) {
		empty := NewBaseURLResolver("")
		_, err := empty.Resolve("key")
		assert.Error(t, err)
	})
}
