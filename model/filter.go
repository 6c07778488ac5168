package model

import "strings"

// Filter is one resolved ffmpeg audio filter: a display name plus the
// -af expression it expands to.
type Filter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FilterList is the ordered set of filters applied to a queue. Order matters:
// ffmpeg chains the expressions left to right.
type FilterList []Filter

// Has reports whether a filter with the given name is in the list.
func (l FilterList) Has(name string) bool {
	for _, f := range l {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Names returns the display names in order.
func (l FilterList) Names() []string {
	names := make([]string, len(l))
	for i, f := range l {
		names[i] = f.Name
	}
	return names
}

// Values joins the expressions into a single ffmpeg -af argument.
func (l FilterList) Values() string {
	vals := make([]string, len(l))
	for i, f := range l {
		vals[i] = f.Value
	}
	return strings.Join(vals, ",")
}

// Clone returns an independent copy so queue snapshots cannot alias.
func (l FilterList) Clone() FilterList {
	if l == nil {
		return nil
	}
	out := make(FilterList, len(l))
	copy(out, l)
	return out
}
