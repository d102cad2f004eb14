// Package analytics aggregates recorded engagement actions for the stats
// endpoints.
package analytics

import (
	"sort"
	"time"

	"xnom/internal/model"
)

// KindCounts is the outcome tally for one action kind.
type KindCounts struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// HourBucket is one hour of actions, keyed by kind.
type HourBucket struct {
	Hour   time.Time                `json:"hour"`
	ByKind map[model.ActionKind]int `json:"byKind"`
}

// HourlyEngagement aggregates actions into per-hour UTC buckets.
func HourlyEngagement(actions []model.EngagementAction) map[time.Time]map[model.ActionKind]int {
	buckets := make(map[time.Time]map[model.ActionKind]int)
	for _, a := range actions {
		ts := a.Timestamp.UTC()
		key := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, time.UTC)
		if _, ok := buckets[key]; !ok {
			buckets[key] = make(map[model.ActionKind]int)
		}
		buckets[key][a.Kind]++
	}
	return buckets
}

// SortedBucketKeys returns sorted hour keys.
func SortedBucketKeys(m map[time.Time]map[model.ActionKind]int) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// HourlySeries is HourlyEngagement flattened oldest first.
func HourlySeries(actions []model.EngagementAction) []HourBucket {
	m := HourlyEngagement(actions)
	out := make([]HourBucket, 0, len(m))
	for _, k := range SortedBucketKeys(m) {
		out = append(out, HourBucket{Hour: k, ByKind: m[k]})
	}
	return out
}

// ByKind tallies actions per kind and outcome.
func ByKind(actions []model.EngagementAction) map[model.ActionKind]KindCounts {
	out := make(map[model.ActionKind]KindCounts)
	for _, a := range actions {
		c := out[a.Kind]
		c.Total++
		if a.Success {
			c.Successful++
		} else {
			c.Failed++
		}
		out[a.Kind] = c
	}
	return out
}
