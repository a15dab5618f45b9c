package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"high", "low"}, SplitList("HIGH, low", "high", ""))
	assert.Equal(t, []string{"item_deleted", "item_viewed"}, SplitList("item_deleted,,item_viewed, "))
	assert.Nil(t, SplitList())
	assert.Nil(t, SplitList(" , "))
}

func TestTrimSpacePtr(t *testing.T) {
	assert.Nil(t, TrimSpacePtr(nil))
	blank := "   "
	assert.Nil(t, TrimSpacePtr(&blank))
	value := " sess-1 "
	assert.Equal(t, "sess-1", *TrimSpacePtr(&value))
}
