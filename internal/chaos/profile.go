// Package chaos validates and normalizes chaos key profiles: the per-key
// latency/failure injection settings the external proxy reads.
package chaos

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// MaxLatencyMS bounds both latency fields.
	MaxLatencyMS = 60000
	// MaxTargetURLLen bounds the target URL.
	MaxTargetURLLen = 2048
)

var allowedMethods = map[string]bool{
	"ANY": true, "GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// Profile carries the chaos settings for one key, pre-persistence.
// A zero TargetURL means "no fixed upstream".
type Profile struct {
	Name       string
	TargetURL  string
	Method     string
	FailRate   int
	MinLatency int
	MaxLatency int
	ErrorCodes []int
}

// Validate checks and normalizes the profile in place: the method is
// uppercased and error codes are deduplicated and sorted. It returns the
// first violation found.
func (p *Profile) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > 255 {
		return errors.New("name too long")
	}
	p.Name = name

	url, err := NormalizeTargetURL(p.TargetURL)
	if err != nil {
		return err
	}
	p.TargetURL = url

	method, err := NormalizeMethod(p.Method)
	if err != nil {
		return err
	}
	p.Method = method

	if p.FailRate < 0 || p.FailRate > 100 {
		return errors.New("fail_rate must be between 0 and 100")
	}
	if p.MinLatency < 0 || p.MinLatency > MaxLatencyMS {
		return fmt.Errorf("min_latency must be between 0 and %d", MaxLatencyMS)
	}
	if p.MaxLatency < 0 || p.MaxLatency > MaxLatencyMS {
		return fmt.Errorf("max_latency must be between 0 and %d", MaxLatencyMS)
	}
	if p.MinLatency > p.MaxLatency {
		return errors.New("min_latency cannot be greater than max_latency")
	}

	codes, err := NormalizeErrorCodes(p.ErrorCodes)
	if err != nil {
		return err
	}
	p.ErrorCodes = codes

	return nil
}

// NormalizeTargetURL trims the URL and requires an http or https scheme.
// Empty input is allowed and normalizes to "".
func NormalizeTargetURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", nil
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "", errors.New("target_url must be http or https")
	}
	if len(u) > MaxTargetURLLen {
		return "", errors.New("target_url too long")
	}
	return u, nil
}

// NormalizeMethod uppercases the method filter; empty defaults to ANY.
func NormalizeMethod(raw string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(raw))
	if m == "" {
		m = "ANY"
	}
	if !allowedMethods[m] {
		return "", errors.New("method must be one of: ANY, GET, POST, PUT, DELETE, PATCH")
	}
	return m, nil
}

// NormalizeErrorCodes validates each code as an HTTP status in [100,599]
// and returns a deduplicated, sorted copy.
func NormalizeErrorCodes(codes []int) ([]int, error) {
	if len(codes) == 0 {
		return []int{}, nil
	}
	seen := make(map[int]bool, len(codes))
	out := make([]int, 0, len(codes))
	for _, c := range codes {
		if c < 100 || c > 599 {
			return nil, errors.New("error_codes must be HTTP status codes 100-599")
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out, nil
}

// ClampFailRate clamps a fail rate into [0,100].
func ClampFailRate(rate int) int {
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}
