package process

import "sort"

// Orphans returns the stored URLs missing from referenced, sorted.
func Orphans(stored, referenced []string) []string {
	keep := make(map[string]struct{}, len(referenced))
	for _, url := range referenced {
		keep[url] = struct{}{}
	}
	var out []string
	for _, url := range stored {
		if _, ok := keep[url]; !ok {
			out = append(out, url)
		}
	}
	sort.Strings(out)
	return out
}
