package export

import (
	"strings"
	"time"
	_ "time/tzdata"

	"activity-export/internal/common/errors"
)

const activityDateLayout = "2006-01-02 15:04:05"

// NormalizeDate turns "2015-04-09T05:34:40Z" into "2015-04-09 05:34:40".
// With a non-nil loc the literal is read as UTC and re-rendered in loc.
func NormalizeDate(raw string, loc *time.Location) (string, error) {
	literal := strings.TrimSuffix(strings.Replace(raw, "T", " ", 1), "Z")
	if loc == nil {
		return literal, nil
	}

	t, err := time.ParseInLocation(activityDateLayout, literal, time.UTC)
	if err != nil {
		return "", errors.NewMalformedActivityDateError(raw, err)
	}
	return t.In(loc).Format(activityDateLayout), nil
}
