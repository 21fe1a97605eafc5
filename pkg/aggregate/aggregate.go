// Package aggregate merges extracted entries across lists into per-tag sets.
package aggregate

import "sort"

// Contribution is one list's extracted entries together with the tags that
// collect them. Failed lists are simply absent.
type Contribution struct {
	ListID  string
	Tags    []string
	Entries []string
}

// Collect unions contributions per tag. Every tag in tags appears in the
// result, with an empty (non-nil) slice when nothing contributed to it.
// Entries are deduplicated by exact string equality and sorted
// lexicographically, so the result is independent of contribution order.
func Collect(tags []string, contribs []Contribution) map[string][]string {
	sets := make(map[string]map[string]struct{}, len(tags))
	for _, tag := range tags {
		sets[tag] = make(map[string]struct{})
	}

	for _, contrib := range contribs {
		for _, tag := range contrib.Tags {
			set, ok := sets[tag]
			if !ok {
				// Contribution for a tag outside the configured set;
				// collect it anyway.
				set = make(map[string]struct{})
				sets[tag] = set
			}
			for _, entry := range contrib.Entries {
				set[entry] = struct{}{}
			}
		}
	}

	merged := make(map[string][]string, len(sets))
	for tag, set := range sets {
		entries := make([]string, 0, len(set))
		for entry := range set {
			entries = append(entries, entry)
		}
		sort.Strings(entries)
		merged[tag] = entries
	}
	return merged
}
