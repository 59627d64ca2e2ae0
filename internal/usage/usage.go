// Package usage aggregates the append-only usage event log into
// month-to-date totals and fixed-width time-bucketed series. All reads
// degrade to zero-valued results when the event store misbehaves; a missing
// or empty usage_log never fails quota display.
package usage

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Grrraou/latency-poison/internal/store"
)

// Granularity selects the bucket width for a timeline.
type Granularity string

// Window selects the timeline span.
type Window string

const (
	ByHour  Granularity = "hour"
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"

	Window7d  Window = "7d"
	Window30d Window = "30d"
)

var (
	ErrInvalidGranularity = errors.New("group_by must be hour, day, or month")
	ErrInvalidWindow      = errors.New("period must be 7d or 30d")
	// ErrHourWindowTooWide rejects hour buckets over the 30d window to bound
	// response size.
	ErrHourWindowTooWide = errors.New("hour grouping only allowed with period=7d")
)

const (
	hourLayout  = "2006-01-02 15:00"
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"

	hourFormat  = "%Y-%m-%d %H:00"
	dayFormat   = "%Y-%m-%d"
	monthFormat = "%Y-%m"

	hoursPerWeek = 24 * 7
)

// PeriodUsage is a count that may have been degraded to zero by a store
// failure. Degraded zero is distinguishable from a true zero so callers can
// report non-availability instead of silently showing no usage.
type PeriodUsage struct {
	Count    int64
	Degraded bool
}

// KeyCount is the all-time event count for one key.
type KeyCount struct {
	KeyID   int64  `json:"key_id"`
	KeyName string `json:"key_name"`
	Count   int64  `json:"count"`
}

// Summary is the owner's total plus per-key counts.
type Summary struct {
	TotalRequests int64      `json:"total_requests"`
	ByKey         []KeyCount `json:"by_key"`
	Degraded      bool       `json:"-"`
}

// Series is one key's counts aligned to the timeline's label set.
type Series struct {
	KeyID   int64   `json:"key_id"`
	KeyName string  `json:"key_name"`
	Counts  []int64 `json:"counts"`
}

// Timeline is a dense, calendar-aligned bucketed view of the owner's usage.
// Every label in the window is present; labels with no events count zero.
type Timeline struct {
	Granularity Granularity `json:"group_by"`
	Window      Window      `json:"period"`
	Labels      []string    `json:"labels"`
	Series      []Series    `json:"series"`
}

// Aggregator computes usage aggregates from the event store. All methods are
// read-only and safe for concurrent use.
type Aggregator struct {
	usage  *store.UsageStore
	keys   *store.KeyStore
	logger *slog.Logger
}

func NewAggregator(us *store.UsageStore, ks *store.KeyStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{usage: us, keys: ks, logger: logger}
}

// RequestsThisPeriod counts the owner's events since the first of the
// current calendar month, 00:00:00 UTC. Store failures degrade to zero.
func (a *Aggregator) RequestsThisPeriod(ownerID int64, now time.Time) PeriodUsage {
	now = now.UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	n, err := a.usage.CountOwnerSince(ownerID, firstOfMonth)
	if err != nil {
		a.logger.Warn("usage count degraded to zero", "owner_id", ownerID, "error", err)
		return PeriodUsage{Degraded: true}
	}
	return PeriodUsage{Count: n}
}

// Summary returns the owner's all-time total and per-key counts. Store
// failures degrade to zeroes rather than failing the response.
func (a *Aggregator) Summary(ownerID int64) Summary {
	s := Summary{ByKey: []KeyCount{}}

	total, err := a.usage.CountOwnerTotal(ownerID)
	if err != nil {
		a.logger.Warn("usage total degraded to zero", "owner_id", ownerID, "error", err)
		s.Degraded = true
	} else {
		s.TotalRequests = total
	}

	keys, err := a.keys.ListByOwner(ownerID)
	if err != nil {
		a.logger.Warn("key listing degraded", "owner_id", ownerID, "error", err)
		s.Degraded = true
		return s
	}
	for _, k := range keys {
		n, err := a.usage.CountKey(k.ID)
		if err != nil {
			a.logger.Warn("key count degraded to zero", "key_id", k.ID, "error", err)
			n = 0
		}
		s.ByKey = append(s.ByKey, KeyCount{KeyID: k.ID, KeyName: k.Name, Count: n})
	}
	return s
}

// Timeline builds a per-key bucketed series over the window. Labels are
// generated first by walking the calendar, then each key's sparse counts are
// merged on: a store row whose bucket is not in the label set is dropped, a
// label with no row counts zero. A store failure on one key yields an
// all-zero series for that key only.
func (a *Aggregator) Timeline(ownerID int64, g Granularity, w Window, now time.Time) (*Timeline, error) {
	switch g {
	case ByHour, ByDay, ByMonth:
	default:
		return nil, ErrInvalidGranularity
	}
	switch w {
	case Window7d, Window30d:
	default:
		return nil, ErrInvalidWindow
	}
	if g == ByHour && w != Window7d {
		return nil, ErrHourWindowTooWide
	}

	labels, since := bucketLabels(g, w, now)

	tl := &Timeline{Granularity: g, Window: w, Labels: labels, Series: []Series{}}

	keys, err := a.keys.ListByOwner(ownerID)
	if err != nil {
		a.logger.Warn("key listing degraded, timeline empty", "owner_id", ownerID, "error", err)
		return tl, nil
	}

	index := make(map[string]int, len(labels))
	for i, lb := range labels {
		index[lb] = i
	}

	for _, k := range keys {
		counts := make([]int64, len(labels))
		rows, err := a.usage.BucketCounts(k.ID, bucketFormat(g), since)
		if err != nil {
			a.logger.Warn("bucket query degraded to zero series", "key_id", k.ID, "error", err)
			rows = nil
		}
		for bucket, n := range rows {
			if i, ok := index[bucket]; ok {
				counts[i] = n
			}
		}
		tl.Series = append(tl.Series, Series{KeyID: k.ID, KeyName: k.Name, Counts: counts})
	}
	return tl, nil
}

// bucketLabels walks the calendar from the window start to now at the
// requested step and returns the dense ordered label set plus the instant
// the first label covers (the query lower bound). Hour buckets are
// fixed-width: exactly 24x7 labels ending at the current hour. Day and month
// buckets cover every calendar unit the window touches, rolling over month
// lengths and year boundaries via the calendar itself.
func bucketLabels(g Granularity, w Window, now time.Time) ([]string, time.Time) {
	now = now.UTC()
	days := 30
	if w == Window7d {
		days = 7
	}
	from := now.AddDate(0, 0, -days)

	switch g {
	case ByHour:
		start := now.Truncate(time.Hour).Add(-(hoursPerWeek - 1) * time.Hour)
		labels := make([]string, 0, hoursPerWeek)
		for i := 0; i < hoursPerWeek; i++ {
			labels = append(labels, start.Add(time.Duration(i)*time.Hour).Format(hourLayout))
		}
		return labels, start

	case ByDay:
		cur := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start := cur
		var labels []string
		for !cur.After(end) {
			labels = append(labels, cur.Format(dayLayout))
			cur = cur.AddDate(0, 0, 1)
		}
		return labels, start

	default: // ByMonth
		cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := cur
		var labels []string
		for !cur.After(now) {
			labels = append(labels, cur.Format(monthLayout))
			cur = cur.AddDate(0, 1, 0)
		}
		return labels, start
	}
}

func bucketFormat(g Granularity) string {
	switch g {
	case ByHour:
		return hourFormat
	case ByDay:
		return dayFormat
	default:
		return monthFormat
	}
}
