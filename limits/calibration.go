package limits

import (
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"github.com/bytedance/sonic"
	"github.com/samber/lo"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
)

// CalibrationRecord is one user-reported usage reading.
type CalibrationRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	ReportedPercent float64   `json:"reportedPercent"`
	WeightedTokens  float64   `json:"weightedTokens"`
	ImpliedLimit    float64   `json:"impliedLimit"`
}

// Calibration is the persisted sample history and the ceiling derived from it.
type Calibration struct {
	Plan         PlanType            `json:"plan"`
	History      []CalibrationRecord `json:"history"`
	CurrentLimit float64             `json:"currentLimit"`
	Confidence   float64             `json:"confidence"`
}

// ImpliedLimit is the ceiling at which weighted would equal percent of the quota.
func ImpliedLimit(percent, weighted float64) float64 {
	if percent <= 0 {
		return 0
	}
	return math.Round(weighted / (percent / 100))
}

// DeriveLimit returns the robust ceiling for history: the median of implied
// limits once there are enough samples, the mean before that.
func DeriveLimit(history []CalibrationRecord) float64 {
	if len(history) == 0 {
		return 0
	}
	limits := lo.Map(history, func(r CalibrationRecord, _ int) float64 { return r.ImpliedLimit })
	if len(limits) >= models.MedianMinSamples {
		return math.Round(Median(limits))
	}
	return math.Round(Mean(limits))
}

// DeriveConfidence grows linearly with the sample count and saturates at a full history.
func DeriveConfidence(samples int) float64 {
	return math.Min(float64(samples)/float64(models.MaxCalibrationHistory), 1)
}

func (c *Calibration) recompute() {
	c.CurrentLimit = DeriveLimit(c.History)
	c.Confidence = DeriveConfidence(len(c.History))
}

// add appends rec, evicting the oldest records beyond the history cap.
func (c *Calibration) add(rec CalibrationRecord) {
	c.History = append(c.History, rec)
	if over := len(c.History) - models.MaxCalibrationHistory; over > 0 {
		c.History = append([]CalibrationRecord(nil), c.History[over:]...)
	}
	c.recompute()
}

// CeilingFor returns the calibrated ceiling when it was measured on plan, else 0.
func (c Calibration) CeilingFor(plan PlanType) float64 {
	if c.Plan != plan || c.CurrentLimit <= 0 || len(c.History) == 0 {
		return 0
	}
	return c.CurrentLimit
}

// Latest returns up to n of the most recent records, newest first.
func (c Calibration) Latest(n int) []CalibrationRecord {
	recent := append([]CalibrationRecord(nil), c.History...)
	slices.Reverse(recent)
	if n >= 0 && len(recent) > n {
		recent = recent[:n]
	}
	return recent
}

// Distribution summarizes the implied limits in the history.
func (c Calibration) Distribution() Distribution {
	return Analyze(lo.Map(c.History, func(r CalibrationRecord, _ int) float64 { return r.ImpliedLimit }))
}

// CalibrationStore reads and writes the calibration file.
type CalibrationStore struct {
	path string
}

func NewCalibrationStore(path string) *CalibrationStore {
	return &CalibrationStore{path: path}
}

func (s *CalibrationStore) Path() string {
	return s.path
}

// Load returns the stored calibration. Missing or corrupt files yield an
// empty calibration. Derived fields are recomputed from the samples.
func (s *CalibrationStore) Load() Calibration {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LogWarnf("calibration %s unreadable: %v", s.path, err)
		}
		return Calibration{}
	}

	var c Calibration
	if err := sonic.Unmarshal(data, &c); err != nil {
		logging.LogWarnf("%v", apperrors.Wrap(apperrors.TypeStateCorrupt, "load calibration", s.path, err))
		return Calibration{}
	}
	c.History = lo.Filter(c.History, func(r CalibrationRecord, _ int) bool {
		return r.ImpliedLimit > 0 && !math.IsInf(r.ImpliedLimit, 0) && !math.IsNaN(r.ImpliedLimit)
	})
	if len(c.History) > models.MaxCalibrationHistory {
		c.History = c.History[len(c.History)-models.MaxCalibrationHistory:]
	}
	c.recompute()
	return c
}

// Save writes the calibration atomically.
func (s *CalibrationStore) Save(c Calibration) error {
	if c.History == nil {
		c.History = []CalibrationRecord{}
	}
	data, err := sonic.ConfigStd.MarshalIndent(c, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.TypeUnexpected, "encode calibration", s.path, err)
	}
	return fileio.WriteFileAtomic(s.path, data)
}

// Calibrator folds reported percentages into the stored calibration.
type Calibrator struct {
	store *CalibrationStore
}

func NewCalibrator(store *CalibrationStore) *Calibrator {
	return &Calibrator{store: store}
}

// Current returns the stored calibration.
func (c *Calibrator) Current() Calibration {
	return c.store.Load()
}

// Ingest validates a reading, appends it and persists the new calibration.
// Invalid input leaves the stored history untouched. A plan different from
// the stored one starts a new history.
func (c *Calibrator) Ingest(plan PlanType, reportedPercent, weightedTokens float64, now time.Time) (Calibration, CalibrationRecord, error) {
	if math.IsNaN(reportedPercent) || reportedPercent <= 0 || reportedPercent > 100 {
		return Calibration{}, CalibrationRecord{}, &apperrors.Error{
			Type:    apperrors.TypeValidation,
			Op:      "calibrate",
			Message: fmt.Sprintf("invalid percent %v", reportedPercent),
			Cause:   apperrors.ErrInvalidPercent,
		}
	}
	if math.IsNaN(weightedTokens) || math.IsInf(weightedTokens, 0) || weightedTokens <= 0 {
		return Calibration{}, CalibrationRecord{}, apperrors.New(apperrors.TypeValidation, "calibrate",
			"no weighted usage in the current window; use the client first, then calibrate")
	}

	current := c.store.Load()
	if current.Plan != plan {
		if len(current.History) > 0 {
			logging.LogInfof("plan changed from %s to %s, starting a new calibration history", current.Plan, plan)
		}
		current = Calibration{Plan: plan}
	}

	rec := CalibrationRecord{
		Timestamp:       now.UTC(),
		ReportedPercent: reportedPercent,
		WeightedTokens:  weightedTokens,
		ImpliedLimit:    ImpliedLimit(reportedPercent, weightedTokens),
	}
	current.add(rec)

	if err := c.store.Save(current); err != nil {
		return Calibration{}, CalibrationRecord{}, err
	}
	return current, rec, nil
}
