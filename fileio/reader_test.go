package fileio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/claudequota/models"
)

func createTestJSONLFile(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestParseLine_UserMessages(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantContent string
		qualifies   bool
	}{
		{
			name:        "string content",
			line:        `{"type":"user","timestamp":"2025-06-01T10:00:00.123Z","uuid":"u1","message":{"role":"user","content":"  refactor the parser  "}}`,
			wantContent: "refactor the parser",
			qualifies:   true,
		},
		{
			name:        "array with leading text block",
			line:        `{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"content":[{"type":"text","text":"hello"},{"type":"image"}]}}`,
			wantContent: "hello",
			qualifies:   true,
		},
		{
			name:      "array led by tool result",
			line:      `{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"content":[{"type":"tool_result","content":"ok"},{"type":"text","text":"x"}]}}`,
			qualifies: false,
		},
		{
			name:      "empty array",
			line:      `{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"content":[]}}`,
			qualifies: false,
		},
		{
			name:      "object content",
			line:      `{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"content":{"text":"x"}}}`,
			qualifies: false,
		},
		{
			name:        "sidechain",
			line:        `{"type":"user","isSidechain":true,"timestamp":"2025-06-01T10:00:00Z","message":{"content":"sub agent"}}`,
			wantContent: "sub agent",
			qualifies:   false,
		},
		{
			name:        "prompt submit without message",
			line:        `{"type":"UserPromptSubmit","timestamp":"2025-06-01T10:00:00Z","prompt":"go"}`,
			wantContent: "go",
			qualifies:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseLine([]byte(tt.line))
			require.True(t, ok)
			assert.Equal(t, models.KindUserMessage, ev.Kind)
			assert.Equal(t, tt.wantContent, ev.Content)
			assert.Equal(t, tt.qualifies, ev.IsQualifyingUserMessage())
		})
	}
}

func TestParseLine_AssistantResponse(t *testing.T) {
	line := `{"type":"assistant","timestamp":"2025-06-01T10:05:00Z","uuid":"a1","parentUuid":"u1","isSidechain":false,` +
		`"message":{"id":"msg_01","model":"claude-sonnet-4-20250514","usage":{"input_tokens":12,"output_tokens":340,` +
		`"cache_creation_input_tokens":1000,"cache_read_input_tokens":20000}}}`

	ev, ok := ParseLine([]byte(line))
	require.True(t, ok)
	assert.Equal(t, models.KindAssistantResponse, ev.Kind)
	assert.Equal(t, "claude-sonnet-4-20250514", ev.Model)
	assert.Equal(t, "msg_01", ev.MessageID)
	assert.Equal(t, "u1", ev.ParentID)
	assert.Equal(t, models.TokenUsage{InputTokens: 12, OutputTokens: 340, CacheCreationTokens: 1000, CacheReadTokens: 20000}, ev.Usage)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC), ev.Timestamp)
	assert.True(t, ev.IsQualifyingAssistantResponse())
}

func TestParseLine_DirectAPIFormat(t *testing.T) {
	line := `{"type":"message","id":"m9","timestamp":"2025-01-24T10:00:00Z","model":"claude-3-opus","usage":{"input_tokens":100,"output_tokens":50,"cache_creation_tokens":5,"cache_read_tokens":7}}`

	ev, ok := ParseLine([]byte(line))
	require.True(t, ok)
	assert.Equal(t, models.KindAssistantResponse, ev.Kind)
	assert.Equal(t, "m9", ev.MessageID)
	assert.Equal(t, models.TokenUsage{InputTokens: 100, OutputTokens: 50, CacheCreationTokens: 5, CacheReadTokens: 7}, ev.Usage)
}

func TestParseLine_Rejected(t *testing.T) {
	for _, line := range []string{
		`invalid json line`,
		`{"type":"user","message":{"content":"no timestamp"}}`,
		`{"type":"user","timestamp":"yesterday","message":{"content":"x"}}`,
		`[1,2,3]`,
	} {
		_, ok := ParseLine([]byte(line))
		assert.False(t, ok, line)
	}

	ev, ok := ParseLine([]byte(`{"type":"summary","timestamp":"2025-06-01T10:00:00Z"}`))
	require.True(t, ok)
	assert.Equal(t, models.KindOther, ev.Kind)

	ev, ok = ParseLine([]byte(`{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","message":{"model":"x"}}`))
	require.True(t, ok)
	assert.Equal(t, models.KindOther, ev.Kind)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{"2025-06-01T10:00:00Z", "2025-06-01T10:00:00.000Z", "2025-06-01T12:00:00+02:00", "2025-06-01T10:00:00"} {
		got, ok := ParseTimestamp(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), s)
		assert.Equal(t, time.UTC, got.Location())
	}
	_, ok := ParseTimestamp("")
	assert.False(t, ok)
}

func TestReadFile(t *testing.T) {
	path := createTestJSONLFile(t, t.TempDir(), "a.jsonl", []string{
		`{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"content":"one"}}`,
		``,
		`not json`,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:05Z","message":{"id":"m1","model":"claude-opus-4","usage":{"input_tokens":1,"output_tokens":2}}}`,
	})

	events, err := ReadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, path, events[0].File)
	assert.Equal(t, models.KindAssistantResponse, events[1].Kind)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"), 0)
	assert.Error(t, err)
}

func TestReadFile_SkipsOversizedLines(t *testing.T) {
	long := `{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"content":"` + strings.Repeat("x", 8192) + `"}}`
	path := createTestJSONLFile(t, t.TempDir(), "long.jsonl", []string{
		`{"type":"user","timestamp":"2025-06-01T09:59:00Z","message":{"content":"before"}}`,
		long,
		`{"type":"user","timestamp":"2025-06-01T10:01:00Z","message":{"content":"after"}}`,
	})

	events, err := ReadFile(path, 2048)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "before", events[0].Content)
	assert.Equal(t, "after", events[1].Content)

	events, err = ReadFile(path, 16*1024)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestReadEvents_LastLineWithoutNewline(t *testing.T) {
	input := `{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"content":"a"}}` + "\r\n" +
		`{"type":"user","timestamp":"2025-06-01T10:01:00Z","message":{"content":"b"}}`

	var got []string
	err := ReadEvents(strings.NewReader(input), "mem", 0, func(ev models.Event) bool {
		got = append(got, ev.Content)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}
