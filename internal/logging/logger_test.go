package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWritesTimestampedLine(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetStreams(&buf, nil, nil)

	l.Log("client %s connected", "foo@example.com")

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "["))
	assert.Contains(t, line, "client foo@example.com connected")
}

func TestErrorSafeDoesNotExit(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetStreams(nil, nil, &buf)

	exited := false
	l.exit = func(int) { exited = true }

	l.Error(true, "recoverable: %v", "oops")

	assert.False(t, exited)
	assert.Contains(t, buf.String(), "recoverable: oops")
}

func TestErrorUnsafeExits(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetStreams(nil, nil, &buf)

	var code int
	l.exit = func(c int) { code = c }

	l.Error(false, "fatal: %v", "bad key file")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "fatal: bad key file")
}

func TestScopedComposesAtomicLine(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetStreams(&buf, nil, nil)

	sb, commit := l.Scoped()
	sb.WriteString("part one, ")
	sb.WriteString("part two")
	commit(l.Log)

	assert.Contains(t, buf.String(), "part one, part two")
}

func TestChangelogIndependentFromLog(t *testing.T) {
	var logBuf, changeBuf bytes.Buffer
	l := New()
	l.SetStreams(&logBuf, &changeBuf, nil)

	l.Log("generic log line")
	l.Changelog("foo@example.com inserted drawing 123")

	assert.Contains(t, logBuf.String(), "generic log line")
	assert.NotContains(t, logBuf.String(), "inserted drawing")
	assert.Contains(t, changeBuf.String(), "inserted drawing 123")
}
