package limits

import (
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/penwyp/claudequota/errors"
)

var (
	currentSessionPattern = regexp.MustCompile(`(?i)Current\s+session[^\n]*?(\d+(?:\.\d+)?)\s*%\s+used`)
	anyUsedPattern        = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s+used`)
	barePercentPattern    = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*%?$`)
)

// ParseReportedPercent extracts a usage percentage from "30", "30%" or the
// text of the client's usage screen. The "Current session" line is preferred
// over any other "NN% used" line.
func ParseReportedPercent(text string) (float64, error) {
	s := strings.TrimSpace(text)
	var raw string
	switch {
	case barePercentPattern.MatchString(s):
		raw = barePercentPattern.FindStringSubmatch(s)[1]
	case currentSessionPattern.MatchString(s):
		raw = currentSessionPattern.FindStringSubmatch(s)[1]
	case anyUsedPattern.MatchString(s):
		raw = anyUsedPattern.FindStringSubmatch(s)[1]
	default:
		return 0, &apperrors.Error{Type: apperrors.TypeParse, Op: "parse percent", Message: "no usage percentage found"}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.TypeParse, "parse percent", "", err)
	}
	if v <= 0 || v > 100 {
		return 0, &apperrors.Error{Type: apperrors.TypeValidation, Op: "parse percent", Cause: apperrors.ErrInvalidPercent}
	}
	return v, nil
}
