package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		v, err := Generate(PrefixBot)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(v, "bot-"))
		assert.Len(t, v, len("bot-")+21)
		_, dup := seen[v]
		assert.False(t, dup, "duplicate id %s", v)
		seen[v] = struct{}{}
	}
}

func TestMustGenerate(t *testing.T) {
	assert.True(t, strings.HasPrefix(MustGenerate(PrefixTransaction), "txn-"))
}

func TestTelegram(t *testing.T) {
	assert.Equal(t, "tg-12345", Telegram(12345))
}
