package orchestrator

import (
	"fmt"
	"iter"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/penwyp/claudequota/calculations"
	"github.com/penwyp/claudequota/config"
	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/limits"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
	"github.com/penwyp/claudequota/sessions"
)

// Options wires an Engine. Nil stores and models fall back to defaults
// rooted in the current directory, which is only useful in tests.
type Options struct {
	// LogDir overrides log directory discovery.
	LogDir       string
	Plan         limits.PlanType
	Models       *calculations.ModelConfig
	States       *sessions.StateStore
	Calibrations *limits.CalibrationStore
	Scan         fileio.ScanOptions
}

// Engine computes usage reports.
type Engine struct {
	logDir     string
	plan       limits.PlanType
	models     *calculations.ModelConfig
	states     *sessions.StateStore
	calibrator *limits.Calibrator
	scanner    *fileio.Scanner
}

func NewEngine(opts Options) *Engine {
	if opts.Plan == "" {
		opts.Plan = limits.DefaultPlan
	}
	if opts.Models == nil {
		opts.Models = calculations.DefaultModelConfig()
	}
	if opts.States == nil {
		opts.States = sessions.NewStateStore(models.WindowStateFileName)
	}
	if opts.Calibrations == nil {
		opts.Calibrations = limits.NewCalibrationStore(models.CalibrationFileName)
	}
	return &Engine{
		logDir:     opts.LogDir,
		plan:       opts.Plan,
		models:     opts.Models,
		states:     opts.States,
		calibrator: limits.NewCalibrator(opts.Calibrations),
		scanner:    fileio.NewScanner(opts.Scan),
	}
}

// NewEngineFromConfig builds an Engine from resolved configuration. A
// corrupt model config is logged and replaced by the built-in weights.
func NewEngineFromConfig(cfg *config.Config, cache fileio.EventCache) *Engine {
	modelCfg, err := calculations.LoadModelConfig(cfg.ModelConfigPath())
	if err != nil {
		logging.LogWarnf("Using default model weights: %v", err)
		modelCfg = calculations.DefaultModelConfig()
	}
	return NewEngine(Options{
		LogDir:       cfg.LogDir(),
		Plan:         cfg.ResolvePlan(),
		Models:       modelCfg,
		States:       sessions.NewStateStore(cfg.WindowStatePath()),
		Calibrations: limits.NewCalibrationStore(cfg.CalibrationPath()),
		Scan: fileio.ScanOptions{
			MaxFiles:     cfg.Data.MaxFiles,
			MaxLineBytes: cfg.Data.MaxLineBytes,
			Cache:        cache,
		},
	})
}

func (e *Engine) Plan() limits.PlanType { return e.plan }

// Calibration returns the stored calibration history.
func (e *Engine) Calibration() limits.Calibration {
	return e.calibrator.Current()
}

// Compute advances the window state to now and reports usage within the
// current window. It always returns a well-formed report.
func (e *Engine) Compute(now time.Time) (rep Report) {
	now = now.UTC().Truncate(time.Second)

	defer func() {
		if r := recover(); r != nil {
			logging.LogErrorf("usage computation panicked: %v", r)
			rep = newReport(e.plan, now)
			rep.Error = fmt.Sprintf("internal error: %v", r)
			rep.failed = true
		}
	}()

	root, err := fileio.ResolveLogDir(e.logDir)
	if err != nil {
		logging.LogWarnf("No conversation logs: %v", err)
		rep = newReport(e.plan, now)
		rep.Error = apperrors.ErrLogDirNotFound.Error()
		return rep
	}

	machine := sessions.NewMachine(func(since time.Time) iter.Seq[models.Event] {
		return e.scanner.Events(root, since)
	})
	state := e.states.Load()
	res := machine.Resolve(state, now)
	if res.Changed {
		logging.LogDebugf("window state %s -> %s", state.Phase(), res.Phase)
		if err := e.states.Save(res.State); err != nil {
			logging.LogErrorf("Failed to persist window state: %v", err)
		}
	}

	return e.build(res, now)
}

// CalibrationResult is the outcome of one calibration reading.
type CalibrationResult struct {
	Plan            limits.PlanType `json:"plan"`
	ReportedPercent float64         `json:"reportedPercent"`
	WeightedTokens  float64         `json:"weightedTokens"`
	ImpliedLimit    float64         `json:"impliedLimit"`
	PreviousLimit   float64         `json:"previousLimit"`
	CurrentLimit    float64         `json:"currentLimit"`
	Confidence      float64         `json:"confidence"`
	Samples         int             `json:"samples"`
	CalculatedAt    time.Time       `json:"calculatedAt"`
}

// Calibrate records reportedPercent against the weighted usage of the
// current window.
func (e *Engine) Calibrate(reportedPercent float64, now time.Time) (CalibrationResult, error) {
	rep := e.Compute(now)
	if rep.Error != "" {
		return CalibrationResult{}, apperrors.New(apperrors.TypeIO, "calibrate", rep.Error)
	}

	previous := e.calibrator.Current().CeilingFor(e.plan)
	cal, rec, err := e.calibrator.Ingest(e.plan, reportedPercent, rep.Weighted(), rep.CalculatedAt)
	if err != nil {
		return CalibrationResult{}, err
	}

	logging.LogInfof("calibration: %.1f%% at %.0f weighted tokens implies %.0f", reportedPercent, rec.WeightedTokens, rec.ImpliedLimit)
	return CalibrationResult{
		Plan:            cal.Plan,
		ReportedPercent: rec.ReportedPercent,
		WeightedTokens:  rec.WeightedTokens,
		ImpliedLimit:    rec.ImpliedLimit,
		PreviousLimit:   previous,
		CurrentLimit:    cal.CurrentLimit,
		Confidence:      cal.Confidence,
		Samples:         len(cal.History),
		CalculatedAt:    rep.CalculatedAt,
	}, nil
}

type modelGroup struct {
	key      string
	entry    calculations.ModelEntry
	models   map[string]struct{}
	requests int
	raw      int64
	weighted calculations.Weighted
}

func (e *Engine) build(res sessions.Resolution, now time.Time) Report {
	rep := newReport(e.plan, now)
	sp := limits.GetPlan(e.plan)

	cal := e.calibrator.Current()
	calibrated := cal.CeilingFor(e.plan)
	rep.Calibration = CalibrationInfo{
		CurrentLimit: cal.CurrentLimit,
		Confidence:   cal.Confidence,
		Samples:      len(cal.History),
		Applied:      calibrated > 0,
	}
	limit := sp.TokenLimit
	if calibrated > 0 {
		limit = calibrated
	}
	rep.TokenLimit = int64(math.Round(limit))

	if res.Window != nil {
		start, end := res.Window.Start, res.Window.End
		rep.WindowStart = &start
		rep.WindowEnd = &end
		rep.TimeUntilReset = int64(res.Window.TimeUntilReset(now) / time.Second)
	}
	rep.ResetStatus = ResetStatus{IsReset: res.Phase == sessions.PhaseExpired, ResetAt: res.ResetAt}

	messages := lo.CountBy(res.Events, func(ev models.Event) bool { return ev.IsQualifyingUserMessage() })
	rep.Legacy.MessageCount = messages
	rep.Legacy.RemainingMessages = max(0, sp.MessageLimit-messages)
	if sp.MessageLimit > 0 {
		rep.Legacy.MessagePercent = int(math.Round(float64(messages) / float64(sp.MessageLimit) * 100))
	}

	groups := make(map[string]*modelGroup)
	var total calculations.Weighted
	for _, ev := range dedupeResponses(res.Events) {
		resolved, w := e.models.Weigh(ev.Model, ev.Usage)
		g, ok := groups[resolved.Key]
		if !ok {
			g = &modelGroup{key: resolved.Key, entry: resolved.Entry, models: map[string]struct{}{}}
			groups[resolved.Key] = g
		}
		if ev.Model != "" {
			g.models[ev.Model] = struct{}{}
		}
		g.requests++
		g.raw += ev.Usage.Total()
		g.weighted = g.weighted.Add(w)
		total = total.Add(w)
		rep.Tokens.Raw.add(ev.Usage)
	}
	rep.Tokens.Weighted = WeightedTokens{Input: total.WeightedInput, Output: total.WeightedOutput, Total: total.Total}

	var percentSum float64
	breakdown := make([]ModelUsage, 0, len(groups))
	for _, g := range groups {
		ceiling := g.entry.Ceiling(calibrated, sp.TokenLimit)
		pct := calculations.PercentFor(g.entry, float64(g.raw), g.weighted.Total, ceiling)
		percentSum += pct
		breakdown = append(breakdown, ModelUsage{
			ModelKey:       g.key,
			Models:         sortedKeys(g.models),
			Requests:       g.requests,
			RawTokens:      g.raw,
			WeightedTokens: g.weighted.Total,
			Percent:        pct,
		})
	}
	for i := range breakdown {
		if total.Total > 0 {
			breakdown[i].TokenShare = round1(breakdown[i].WeightedTokens / total.Total * 100)
		}
		if percentSum > 0 {
			breakdown[i].PercentShare = round1(breakdown[i].Percent / percentSum * 100)
		}
		breakdown[i].Percent = round1(breakdown[i].Percent)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].WeightedTokens != breakdown[j].WeightedTokens {
			return breakdown[i].WeightedTokens > breakdown[j].WeightedTokens
		}
		return breakdown[i].ModelKey < breakdown[j].ModelKey
	})
	rep.ModelBreakdown = breakdown

	rep.TokenPercent = round1(percentSum)
	rep.MessagePercent = rep.TokenPercent
	rep.RemainingPercent = round1(math.Max(0, 100-percentSum))
	rep.RemainingTokens = int64(math.Round(limit * math.Max(0, 100-percentSum) / 100))
	return rep
}

// dedupeResponses keeps one assistant response per message id, the last
// one seen, at the position of its first appearance. Responses without an
// id are kept as they are.
func dedupeResponses(events []models.Event) []models.Event {
	out := make([]models.Event, 0, len(events))
	index := make(map[string]int)
	for _, ev := range events {
		if !ev.IsQualifyingAssistantResponse() {
			continue
		}
		if ev.MessageID == "" {
			out = append(out, ev)
			continue
		}
		if i, ok := index[ev.MessageID]; ok {
			out[i] = ev
			continue
		}
		index[ev.MessageID] = len(out)
		out = append(out, ev)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
