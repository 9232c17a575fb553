package fileio

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
)

// rawLine is one JSONL record. It covers two layouts:
//  1. Claude Code session format: type="assistant"/"user" with a nested message
//  2. Direct API format: type="message" with top-level model and usage
type rawLine struct {
	Type        string      `json:"type"`
	Timestamp   string      `json:"timestamp"`
	IsSidechain bool        `json:"isSidechain"`
	UUID        string      `json:"uuid"`
	ParentUUID  string      `json:"parentUuid"`
	Prompt      string      `json:"prompt"`
	Model       string      `json:"model"`
	ID          string      `json:"id"`
	Usage       *rawUsage   `json:"usage"`
	Message     *rawMessage `json:"message"`
}

type rawMessage struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Content any       `json:"content"`
	Usage   *rawUsage `json:"usage"`
}

type rawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens      int64 `json:"cache_creation_tokens"`
	CacheReadTokens          int64 `json:"cache_read_tokens"`
}

func (u *rawUsage) toUsage() models.TokenUsage {
	if u == nil {
		return models.TokenUsage{}
	}
	return models.TokenUsage{
		InputTokens:         nonNegative(u.InputTokens),
		OutputTokens:        nonNegative(u.OutputTokens),
		CacheCreationTokens: nonNegative(u.CacheCreationInputTokens + u.CacheCreationTokens),
		CacheReadTokens:     nonNegative(u.CacheReadInputTokens + u.CacheReadTokens),
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseTimestamp accepts RFC 3339 with or without fractional seconds. A
// timestamp without a zone is taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseLine decodes one log line. Lines that are not JSON objects or carry
// no parsable timestamp return false.
func ParseLine(line []byte) (models.Event, bool) {
	var raw rawLine
	if err := sonic.Unmarshal(line, &raw); err != nil {
		return models.Event{}, false
	}
	ts, ok := ParseTimestamp(raw.Timestamp)
	if !ok {
		return models.Event{}, false
	}

	ev := models.Event{
		Timestamp:   ts,
		IsSidechain: raw.IsSidechain,
		ID:          raw.UUID,
		ParentID:    raw.ParentUUID,
	}

	switch raw.Type {
	case "user", "UserPromptSubmit", "user_prompt":
		ev.Kind = models.KindUserMessage
		if raw.Message != nil {
			ev.Content = userContent(raw.Message.Content)
		} else {
			ev.Content = strings.TrimSpace(raw.Prompt)
		}
	case "assistant":
		if raw.Message == nil || raw.Message.Usage == nil {
			ev.Kind = models.KindOther
			break
		}
		ev.Kind = models.KindAssistantResponse
		ev.Model = raw.Message.Model
		ev.MessageID = raw.Message.ID
		ev.Usage = raw.Message.Usage.toUsage()
	case "message":
		if raw.Usage == nil {
			ev.Kind = models.KindOther
			break
		}
		ev.Kind = models.KindAssistantResponse
		ev.Model = raw.Model
		ev.MessageID = raw.ID
		ev.Usage = raw.Usage.toUsage()
	default:
		ev.Kind = models.KindOther
	}
	return ev, true
}

// userContent accepts a plain string, or an array whose first element is a
// text block. Any other shape yields "".
func userContent(content any) string {
	switch c := content.(type) {
	case string:
		return strings.TrimSpace(c)
	case []any:
		if len(c) == 0 {
			return ""
		}
		block, ok := c[0].(map[string]any)
		if !ok || block["type"] != "text" {
			return ""
		}
		text, _ := block["text"].(string)
		return strings.TrimSpace(text)
	default:
		return ""
	}
}

// ReadEvents parses every line of r, calling yield for each valid event.
// It stops early when yield returns false. Lines longer than maxLineBytes
// are skipped like any other unparsable line.
func ReadEvents(r io.Reader, path string, maxLineBytes int, yield func(models.Event) bool) error {
	if maxLineBytes <= 0 {
		maxLineBytes = models.DefaultMaxLineBytes
	}
	initial := models.InitialLineBuffer
	if initial > maxLineBytes {
		initial = maxLineBytes
	}

	reader := bufio.NewReaderSize(r, initial)
	line := make([]byte, 0, initial)
	oversized := false

	for {
		fragment, isPrefix, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return apperrors.Wrap(apperrors.TypeIO, "read", path, err)
		}

		if !oversized {
			if len(line)+len(fragment) > maxLineBytes {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, fragment...)
			}
		}
		if isPrefix {
			continue
		}

		if oversized {
			logging.LogDebugf("skipping line over %d bytes in %s", maxLineBytes, path)
			oversized = false
			continue
		}
		if len(line) == 0 {
			continue
		}
		ev, ok := ParseLine(line)
		line = line[:0]
		if !ok {
			continue
		}
		ev.File = path
		if !yield(ev) {
			return nil
		}
	}
}

// ReadFile parses all events in the file at path. On a read error the
// events parsed before it are returned along with the error.
func ReadFile(path string, maxLineBytes int) ([]models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.TypeIO, "open", path, err)
	}
	defer f.Close()

	var events []models.Event
	err = ReadEvents(f, path, maxLineBytes, func(ev models.Event) bool {
		events = append(events, ev)
		return true
	})
	return events, err
}
