package orchestrator

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/limits"
	"github.com/penwyp/claudequota/models"
	"github.com/penwyp/claudequota/sessions"
)

var now = time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

type testEnv struct {
	logDir   string
	stateDir string
	states   *sessions.StateStore
	cals     *limits.CalibrationStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stateDir := t.TempDir()
	return &testEnv{
		logDir:   t.TempDir(),
		stateDir: stateDir,
		states:   sessions.NewStateStore(filepath.Join(stateDir, models.WindowStateFileName)),
		cals:     limits.NewCalibrationStore(filepath.Join(stateDir, models.CalibrationFileName)),
	}
}

func (e *testEnv) engine(opts ...func(*Options)) *Engine {
	o := Options{LogDir: e.logDir, Plan: limits.PlanPro, States: e.states, Calibrations: e.cals}
	for _, fn := range opts {
		fn(&o)
	}
	return NewEngine(o)
}

func (e *testEnv) writeLog(t *testing.T, name string, lines ...string) {
	t.Helper()
	path := filepath.Join(e.logDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func userLine(ts time.Time, content string) string {
	return `{"type":"user","timestamp":"` + ts.Format(time.RFC3339) + `","message":{"content":"` + content + `"}}`
}

func assistantLine(ts time.Time, id, model string, input, output int) string {
	return `{"type":"assistant","timestamp":"` + ts.Format(time.RFC3339) + `","message":{"id":"` + id +
		`","model":"` + model + `","usage":{"input_tokens":` + strconv.Itoa(input) + `,"output_tokens":` + strconv.Itoa(output) + `}}}`
}

func timeRef(t time.Time) *time.Time { return &t }

// writeSampleWindow logs one prompt and two responses, one of them streamed
// twice under the same message id.
func (e *testEnv) writeSampleWindow(t *testing.T) {
	e.writeLog(t, "proj/session.jsonl",
		userLine(now.Add(-90*time.Minute), "refactor the parser"),
		assistantLine(now.Add(-89*time.Minute), "m1", "claude-sonnet-4", 1_000_000, 10),
		assistantLine(now.Add(-88*time.Minute), "m1", "claude-sonnet-4", 1_000_000, 200_000),
		assistantLine(now.Add(-60*time.Minute), "m2", "claude-opus-4", 150_000, 10_000),
	)
	require.NoError(t, e.states.Save(sessions.State{WindowStart: timeRef(now.Add(-90 * time.Minute))}))
}

func TestCompute_MissingLogDir(t *testing.T) {
	env := newTestEnv(t)
	eng := env.engine(func(o *Options) { o.LogDir = filepath.Join(env.logDir, "absent") })

	rep := eng.Compute(now)
	assert.Equal(t, "Log directory not found", rep.Error)
	assert.False(t, rep.Failed())
	assert.Zero(t, rep.TokenPercent)
	assert.Zero(t, rep.Legacy.MessageCount)
	assert.Nil(t, rep.WindowStart)
	assert.NotNil(t, rep.ModelBreakdown)

	_, err := os.Stat(env.states.Path())
	assert.True(t, os.IsNotExist(err), "state must stay untouched")
}

func TestCompute_SeedsFreshWindow(t *testing.T) {
	env := newTestEnv(t)
	msg := now.Add(-time.Hour)
	env.writeLog(t, "proj/a.jsonl", userLine(msg, "hello"))

	rep := env.engine().Compute(now)
	require.Empty(t, rep.Error)
	require.NotNil(t, rep.WindowStart)
	assert.Equal(t, msg, *rep.WindowStart)
	assert.Equal(t, sessions.FloorToHour(msg).Add(5*time.Hour), *rep.WindowEnd)
	assert.Equal(t, int64((3*time.Hour+30*time.Minute)/time.Second), rep.TimeUntilReset)
	assert.Equal(t, 1, rep.Legacy.MessageCount)

	st := env.states.Load()
	require.NotNil(t, st.WindowStart)
	assert.Equal(t, msg, st.WindowStart.UTC())
}

func TestCompute_NoEventsSeedsAtNow(t *testing.T) {
	env := newTestEnv(t)

	rep := env.engine().Compute(now)
	require.Empty(t, rep.Error)
	require.NotNil(t, rep.WindowStart)
	assert.Equal(t, now, *rep.WindowStart)
	assert.Zero(t, rep.Tokens.Raw.Total)
	assert.Equal(t, 100.0, rep.RemainingPercent)
}

func TestCompute_DedupesAndBreaksDownByModel(t *testing.T) {
	env := newTestEnv(t)
	env.writeSampleWindow(t)

	rep := env.engine().Compute(now)
	require.Empty(t, rep.Error)

	assert.Equal(t, int64(1_150_000), rep.Tokens.Raw.Input)
	assert.Equal(t, int64(210_000), rep.Tokens.Raw.Output)
	assert.Equal(t, 3_000_000.0, rep.Tokens.Weighted.Total)
	assert.Equal(t, 15.0, rep.TokenPercent)
	assert.Equal(t, rep.TokenPercent, rep.MessagePercent)
	assert.Equal(t, 85.0, rep.RemainingPercent)
	assert.Equal(t, int64(20_000_000), rep.TokenLimit)
	assert.Equal(t, int64(17_000_000), rep.RemainingTokens)

	require.Len(t, rep.ModelBreakdown, 2)
	sonnet, opus := rep.ModelBreakdown[0], rep.ModelBreakdown[1]
	assert.Equal(t, "sonnet", sonnet.ModelKey)
	assert.Equal(t, []string{"claude-sonnet-4"}, sonnet.Models)
	assert.Equal(t, 1, sonnet.Requests)
	assert.Equal(t, 10.0, sonnet.Percent)
	assert.Equal(t, 66.7, sonnet.TokenShare)
	assert.Equal(t, "opus", opus.ModelKey)
	assert.Equal(t, 5.0, opus.Percent)
	assert.Equal(t, 33.3, opus.PercentShare)

	assert.Equal(t, 1, rep.Legacy.MessageCount)
	assert.Equal(t, 45, rep.Legacy.MessageLimit)
	assert.Equal(t, 2, rep.Legacy.MessagePercent)
	assert.Equal(t, 44, rep.Legacy.RemainingMessages)
	assert.False(t, rep.Calibration.Applied)
}

func TestCompute_AppliesCalibration(t *testing.T) {
	env := newTestEnv(t)
	env.writeSampleWindow(t)
	_, _, err := limits.NewCalibrator(env.cals).Ingest(limits.PlanPro, 50, 3_000_000, now.Add(-time.Hour))
	require.NoError(t, err)

	rep := env.engine().Compute(now)
	assert.True(t, rep.Calibration.Applied)
	assert.Equal(t, 6_000_000.0, rep.Calibration.CurrentLimit)
	assert.Equal(t, 1, rep.Calibration.Samples)
	assert.Equal(t, int64(6_000_000), rep.TokenLimit)
	assert.Equal(t, 50.0, rep.TokenPercent)

	other := env.engine(func(o *Options) { o.Plan = limits.PlanMax100 }).Compute(now)
	assert.False(t, other.Calibration.Applied, "calibration is per plan")
	assert.Equal(t, 3.0, other.TokenPercent)
}

func TestCompute_SameSecondIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "proj/a.jsonl",
		userLine(now.Add(-2*time.Hour), "first"),
		assistantLine(now.Add(-2*time.Hour+time.Minute), "m1", "claude-sonnet-4", 5000, 100),
	)

	eng := env.engine()
	first := eng.Compute(now)
	second := eng.Compute(now.Add(700 * time.Millisecond))
	assert.Equal(t, first, second)
}

func TestCompute_ResetLifecycle(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.states.Save(sessions.State{WindowStart: timeRef(now.Add(-6 * time.Hour))}))

	rep := env.engine().Compute(now)
	assert.True(t, rep.ResetStatus.IsReset)
	require.NotNil(t, rep.ResetStatus.ResetAt)
	assert.Equal(t, now, *rep.ResetStatus.ResetAt)
	assert.Nil(t, rep.WindowStart)
	assert.Nil(t, rep.WindowEnd)
	assert.Zero(t, rep.TokenPercent)

	st := env.states.Load()
	assert.Nil(t, st.WindowStart)
	require.NotNil(t, st.ResetTimestamp)

	// A prompt after the reset opens the next window.
	later := now.Add(10 * time.Minute)
	env.writeLog(t, "proj/b.jsonl", userLine(later, "next window"))
	rep = env.engine().Compute(later.Add(time.Minute))
	assert.False(t, rep.ResetStatus.IsReset)
	require.NotNil(t, rep.WindowStart)
	assert.Equal(t, later, *rep.WindowStart)
	assert.Nil(t, env.states.Load().ResetTimestamp)
}

type panicCache struct{}

func (panicCache) Get(string, int64, time.Time) ([]models.Event, bool) { panic("cache exploded") }
func (panicCache) Put(string, int64, time.Time, []models.Event)       {}

func TestCompute_RecoversPanics(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "proj/a.jsonl", userLine(now.Add(-time.Hour), "hello"))

	rep := env.engine(func(o *Options) { o.Scan = fileio.ScanOptions{Cache: panicCache{}} }).Compute(now)
	assert.True(t, rep.Failed())
	assert.Contains(t, rep.Error, "cache exploded")
	assert.Equal(t, limits.PlanPro, rep.Plan)
}

func TestCalibrate(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "proj/a.jsonl",
		userLine(now.Add(-time.Hour), "go"),
		assistantLine(now.Add(-time.Hour+time.Second), "m1", "claude-sonnet-4", 1_000_000, 1_000_000),
	)

	res, err := env.engine().Calibrate(30, now)
	require.NoError(t, err)
	assert.Equal(t, 6_000_000.0, res.WeightedTokens)
	assert.Equal(t, 20_000_000.0, res.ImpliedLimit)
	assert.Equal(t, 20_000_000.0, res.CurrentLimit)
	assert.Zero(t, res.PreviousLimit)
	assert.InDelta(t, 0.1, res.Confidence, 1e-12)
	assert.Equal(t, 1, res.Samples)
}

func TestCalibrate_RejectsEmptyWindow(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine().Calibrate(30, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	assert.Empty(t, env.cals.Load().History)
}

func TestCompute_IgnoresResponsesWithoutOutput(t *testing.T) {
	env := newTestEnv(t)
	sidechain := `{"type":"assistant","isSidechain":true,"timestamp":"` + now.Add(-20*time.Minute).Format(time.RFC3339) +
		`","message":{"id":"s1","model":"claude-sonnet-4","usage":{"input_tokens":500000,"output_tokens":100000}}}`
	env.writeLog(t, "proj/session.jsonl",
		userLine(now.Add(-30*time.Minute), "summarize the diff"),
		assistantLine(now.Add(-29*time.Minute), "m1", "claude-sonnet-4", 1_000_000, 0),
		sidechain,
	)
	require.NoError(t, env.states.Save(sessions.State{WindowStart: timeRef(now.Add(-30 * time.Minute))}))

	rep := env.engine().Compute(now)
	require.Empty(t, rep.Error)
	assert.Zero(t, rep.Tokens.Raw.Total)
	assert.Zero(t, rep.Tokens.Weighted.Total)
	assert.Zero(t, rep.TokenPercent)
	assert.Empty(t, rep.ModelBreakdown)
	assert.Equal(t, 1, rep.Legacy.MessageCount)
}

func TestDedupeResponses(t *testing.T) {
	events := []models.Event{
		{Kind: models.KindAssistantResponse, MessageID: "a", Usage: models.TokenUsage{OutputTokens: 1}},
		{Kind: models.KindAssistantResponse, MessageID: "b", Usage: models.TokenUsage{InputTokens: 900}},
		{Kind: models.KindUserMessage, Content: "hi"},
		{Kind: models.KindAssistantResponse, Usage: models.TokenUsage{OutputTokens: 7}},
		{Kind: models.KindAssistantResponse, MessageID: "a", Usage: models.TokenUsage{OutputTokens: 3}},
	}

	out := dedupeResponses(events)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3), out[0].Usage.OutputTokens)
	assert.Equal(t, int64(7), out[1].Usage.OutputTokens)
}
