package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fritter/pkg/repeat"
	"fritter/pkg/repeat/rules"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSchedule is the normalized form of a job schedule string.
type ParsedSchedule struct {
	Kind   SpecKind
	Cron   string        // when Kind == SpecCron
	Every  time.Duration // when Kind == SpecInterval
	Source string        // "cron", "duration", or "hhmm"
}

// ParseSchedule normalizes the accepted schedule syntaxes (see the
// package documentation). Prefixes force interpretation.
func ParseSchedule(raw string) (ParsedSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSchedule{}, fmt.Errorf("empty schedule")
	}

	switch {
	case strings.HasPrefix(s, "cron:"):
		return ParsedSchedule{Kind: SpecCron, Cron: strings.TrimSpace(s[len("cron:"):]), Source: "cron"}, nil
	case strings.HasPrefix(s, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(s, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	}

	// Cron descriptors and multi-field specs are unambiguous.
	if strings.HasPrefix(s, "@") || strings.Count(s, " ") >= 4 {
		return ParsedSchedule{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}

	if ps, err := parseInterval(s); err == nil {
		return ps, nil
	}
	return ParsedSchedule{}, fmt.Errorf("unrecognized schedule %q", raw)
}

func parseInterval(s string) (ParsedSchedule, error) {
	if h, m, err := parseHHMM(s); err == nil {
		every := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		if every <= 0 {
			return ParsedSchedule{}, fmt.Errorf("interval %q is zero", s)
		}
		return ParsedSchedule{Kind: SpecInterval, Every: every, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return ParsedSchedule{}, fmt.Errorf("invalid interval %q", s)
	}
	if d <= 0 {
		return ParsedSchedule{}, fmt.Errorf("interval %q must be positive", s)
	}
	return ParsedSchedule{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// Rule builds the recurrence rule for this schedule in loc.
func (p ParsedSchedule) Rule(loc *time.Location) (repeat.RecurrenceRule[time.Time], error) {
	switch p.Kind {
	case SpecCron:
		r, err := rules.ParseCron(p.Cron, loc)
		if err != nil {
			return nil, err
		}
		return r, nil
	case SpecInterval:
		r, err := rules.EveryDuration(p.Every)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported schedule kind %d", p.Kind)
	}
}
