package protocol

import "sort"

// VersionVector holds per-device monotonic counters. Missing devices count as 0.
type VersionVector map[string]int64

// Ordering is the causal relation between two version vectors
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Compare returns exactly one of Equal, Before, After or Concurrent
func Compare(a, b VersionVector) Ordering {
	var less, greater bool
	for _, device := range devices(a, b) {
		av, bv := a[device], b[device]
		switch {
		case av < bv:
			less = true
		case av > bv:
			greater = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Merge returns the per-device maximum of a and b
func Merge(a, b VersionVector) VersionVector {
	out := make(VersionVector, len(a)+len(b))
	for device, v := range a {
		out[device] = v
	}
	for device, v := range b {
		if v > out[device] {
			out[device] = v
		}
	}
	return out
}

// Compare compares v with other
func (v VersionVector) Compare(other VersionVector) Ordering {
	return Compare(v, other)
}

// Clone returns a copy of v
func (v VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(v))
	for device, n := range v {
		out[device] = n
	}
	return out
}

// Get returns the counter of device
func (v VersionVector) Get(device string) int64 {
	return v[device]
}

// Increment returns a copy of v with the counter of device increased by one
func (v VersionVector) Increment(device string) VersionVector {
	out := v.Clone()
	out[device]++
	return out
}

// Devices returns the sorted device ids of v
func (v VersionVector) Devices() []string {
	return devices(v, nil)
}

func devices(a, b VersionVector) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for device := range a {
		seen[device] = struct{}{}
	}
	for device := range b {
		seen[device] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for device := range seen {
		out = append(out, device)
	}
	sort.Strings(out)
	return out
}
