package readiness

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTail_KeepsLastLines(t *testing.T) {
	tail := NewTail(3)
	assert.Empty(t, tail.Lines())

	tail.Accept("a")
	tail.Accept("b")
	assert.Equal(t, []string{"a", "b"}, tail.Lines())

	for i := 0; i < 5; i++ {
		tail.Accept(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, tail.Lines())
	assert.Equal(t, 3, tail.Len())
	assert.Equal(t, "line 2\nline 3\nline 4", tail.String())
}

func TestTail_DefaultSize(t *testing.T) {
	tail := NewTail(0)
	for i := 0; i < 100; i++ {
		tail.Accept("x")
	}
	assert.Equal(t, DefaultTailSize, tail.Len())
}
