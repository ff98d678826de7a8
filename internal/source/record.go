// Package source turns raw study data, from a template file or a database,
// into the observation stream consumed by the prevalence tabulator.
package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/wwarncalc/internal/markers"
	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
)

// Record is one subject with all of its marker calls.
type Record struct {
	Meta          prevalence.MetadataKey
	PatientID     string
	Age           *float64
	InclusionDate time.Time
	Calls         []markers.Call
}

// Reader yields records until io.EOF. Close is called once by the owner.
type Reader interface {
	Next() (Record, error)
	Close() error
}

// missing reports whether a cell carries no value.
func missing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "NODATA")
}

func parseAge(s string) (*float64, error) {
	if missing(s) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var dateLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05 -0700 MST",
}

func parseTimeMaybe(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
