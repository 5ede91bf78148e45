package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CalVerFormat selects which calendar-versioning layout a CalVerStrategy
// parses and emits.
type CalVerFormat int

const (
	// YearMonth is YYYY.MM.MICRO, e.g. 2024.1.0.
	YearMonth CalVerFormat = iota
	// YearMonthPadded is YYYY.0M.MICRO, e.g. 2024.01.0.
	YearMonthPadded
	// ShortYearMonth is YY.MM.MICRO, e.g. 24.1.0.
	ShortYearMonth
	// YearMonthDay is YYYY.MM.DD, e.g. 2024.1.15.
	YearMonthDay
	// YearWeek is YYYY.WW.MICRO using the ISO week number.
	YearWeek
	// YearMicro is YYYY.MICRO, e.g. 2024.5.
	YearMicro
)

// ErrCalVerBumpTypeUnsupported is returned when a Major or Minor bump is
// requested against a CalVer-formatted version: CalVer rolls forward with
// the calendar, not semantic severity, so there is no sensible "major"
// or "minor" bump to perform.
var ErrCalVerBumpTypeUnsupported = errors.New("calver versions only support period-rolling bumps, not major/minor")

// Components is a parsed CalVer version: major is the year (or short
// year), minor is month/week/micro depending on format, patch is the
// trailing micro/day component.
type Components struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// CalVerStrategy parses, formats, and advances calendar-versioned strings.
type CalVerStrategy struct {
	Format CalVerFormat
	now    func() time.Time
}

// NewCalVerStrategy builds a strategy using the default YearMonth format.
func NewCalVerStrategy() *CalVerStrategy {
	return &CalVerStrategy{Format: YearMonth, now: time.Now}
}

// WithCalVerFormat returns a copy of s using the given format.
func (s CalVerStrategy) WithCalVerFormat(format CalVerFormat) *CalVerStrategy {
	s.Format = format
	if s.now == nil {
		s.now = time.Now
	}
	return &s
}

func (s *CalVerStrategy) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *CalVerStrategy) currentPeriod() (uint64, uint64) {
	now := s.clock()
	year := uint64(now.Year())
	shortYear := year % 100

	switch s.Format {
	case ShortYearMonth:
		return shortYear, uint64(now.Month())
	case YearWeek:
		_, week := now.ISOWeek()
		return year, uint64(week)
	case YearMicro:
		return year, 0
	default:
		return year, uint64(now.Month())
	}
}

func (s *CalVerStrategy) isCurrentPeriod(c Components) bool {
	major, minor := s.currentPeriod()
	if s.Format == YearMicro {
		return c.Major == major
	}
	return c.Major == major && c.Minor == minor
}

// Parse reads version according to s.Format into its numeric components.
func (s *CalVerStrategy) Parse(version string) (Components, error) {
	version = strings.TrimPrefix(version, "v")
	parts := strings.Split(version, ".")

	need := 2
	if s.Format == YearMonthDay {
		need = 3
	}
	if len(parts) < need {
		return Components{}, errors.Errorf("invalid calver string %q for format", version)
	}

	major, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Components{}, errors.Wrapf(err, "invalid year in %q", version)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Components{}, errors.Wrapf(err, "invalid period component in %q", version)
	}

	if s.Format == YearMicro {
		return Components{Major: major, Minor: minor}, nil
	}

	var patch uint64
	if len(parts) > 2 {
		patch, _ = strconv.ParseUint(parts[2], 10, 64)
	}
	return Components{Major: major, Minor: minor, Patch: patch}, nil
}

// FormatVersion renders components back into a version string for s.Format.
func (s *CalVerStrategy) FormatVersion(c Components) string {
	switch s.Format {
	case YearMonthPadded:
		return fmt.Sprintf("%d.%02d.%d", c.Major, c.Minor, c.Patch)
	case YearMicro:
		return fmt.Sprintf("%d.%d", c.Major, c.Minor)
	default:
		return fmt.Sprintf("%d.%d.%d", c.Major, c.Minor, c.Patch)
	}
}

// Bump advances current to the next CalVer version. Patch and Prerelease
// requests roll the micro component forward within the current period, or
// reset to the new period if current is stale. Major and Minor requests
// are rejected with ErrCalVerBumpTypeUnsupported.
func (s *CalVerStrategy) Bump(current Components, releaseType ReleaseType) (Components, error) {
	if releaseType == Major || releaseType == Minor {
		return Components{}, ErrCalVerBumpTypeUnsupported
	}

	if s.Format == YearMonthDay {
		now := s.clock()
		return Components{Major: uint64(now.Year()), Minor: uint64(now.Month()), Patch: uint64(now.Day())}, nil
	}

	if s.Format == YearMicro {
		major, _ := s.currentPeriod()
		if current.Major == major {
			return Components{Major: major, Minor: current.Minor + 1}, nil
		}
		return Components{Major: major}, nil
	}

	if s.isCurrentPeriod(current) {
		return Components{Major: current.Major, Minor: current.Minor, Patch: current.Patch + 1}, nil
	}

	major, minor := s.currentPeriod()
	return Components{Major: major, Minor: minor}, nil
}

// Compare orders two CalVer strings chronologically.
func (s *CalVerStrategy) Compare(a, b string) (int, error) {
	va, err := s.Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.Parse(b)
	if err != nil {
		return 0, err
	}
	if va.Major != vb.Major {
		return cmpUint(va.Major, vb.Major), nil
	}
	if va.Minor != vb.Minor {
		return cmpUint(va.Minor, vb.Minor), nil
	}
	return cmpUint(va.Patch, vb.Patch), nil
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
