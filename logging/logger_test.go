package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufLogger(buf *bytes.Buffer) *RunLogger {
	return NewRunLogger(&RunLoggerConfig{
		Level:     LogLevelDebug,
		Format:    "json",
		Output:    buf,
		Component: "workflow",
	})
}

func TestRunLogger_ContextualAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(&buf).WithRun("run-1").WithAttr("caller", "alice")
	l.Info("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "workflow", rec["component"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "alice", rec["caller"])
	assert.Equal(t, "hello", rec["msg"])
}

func TestRunLogger_ClonesAreIndependent(t *testing.T) {
	var buf bytes.Buffer
	base := newBufLogger(&buf)
	derived := base.WithComponent("admission").WithRun("run-2")

	base.Info("from base")
	require.Contains(t, buf.String(), `"component":"workflow"`)
	assert.NotContains(t, buf.String(), "run-2", "tagging a clone never mutates the parent")

	buf.Reset()
	derived.Info("from clone")
	assert.Contains(t, buf.String(), `"component":"admission"`)
	assert.Contains(t, buf.String(), `"run_id":"run-2"`)
}

func TestRunLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewRunLogger(&RunLoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestDomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := newBufLogger(&buf)

	LogTransition(l, "run-1", "router", "retrieve", 1)
	LogToolCall(l, "semantic.search", 120*time.Millisecond, nil)
	LogToolCall(l, "metadata.lookup", 40*time.Millisecond, errors.New("boom"))
	LogModelCall(l, "llama3.3:70b", 256, 300*time.Millisecond, nil)
	LogAdmission(l, "alice", false, "caller", 30*time.Second)
	LogAdmission(l, "bob", true, "", 0)

	out := buf.String()
	assert.Contains(t, out, `"msg":"transition"`)
	assert.Contains(t, out, `"tool":"semantic.search"`)
	assert.Contains(t, out, `"msg":"tool call failed"`)
	assert.Contains(t, out, `"tokens":256`)
	assert.Contains(t, out, `"msg":"request rejected"`)
	assert.Contains(t, out, `"retry_after_ms":30000`)
	assert.Contains(t, out, `"msg":"request admitted"`)
}
