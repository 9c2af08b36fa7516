package taillog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTailEmpty(t *testing.T) {
	tail := NewTail(4)
	require.Empty(t, tail.Lines())
}

func TestTailRetainsOrder(t *testing.T) {
	tail := NewTail(4)
	tail.Append("one")
	tail.Append("two")
	tail.Append("three")
	require.Equal(t, []string{"one", "two", "three"}, tail.Lines())
}

func TestTailEvictsOldest(t *testing.T) {
	tail := NewTail(3)
	for i := 1; i <= 5; i++ {
		tail.Append(fmt.Sprintf("line %d", i))
	}
	require.Equal(t, []string{"line 3", "line 4", "line 5"}, tail.Lines())
}

func TestTailSanitizesControlCharacters(t *testing.T) {
	tail := NewTail(2)
	tail.Append("bad\nline\twith\rcontrols\x00here")
	require.Equal(t, []string{`bad\nline\twith\rcontrols?here`}, tail.Lines())
}

func TestTailTruncatesLongLines(t *testing.T) {
	tail := NewTail(1)
	tail.Append(strings.Repeat("x", 500))
	lines := tail.Lines()
	require.Len(t, lines, 1)
	require.True(t, strings.HasSuffix(lines[0], "...[truncated]"))
	require.Less(t, len(lines[0]), 300)
}

func TestTailMinimumCapacity(t *testing.T) {
	tail := NewTail(0)
	tail.Append("only")
	require.Equal(t, []string{"only"}, tail.Lines())
}
