package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Number accepts a JSON number, a numeric string, null or nothing. Anything
// missing or blank decodes to zero.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", s)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Facilities accepts either a comma separated string or a list of strings and
// normalizes both to a sorted set of trimmed, non-empty names.
type Facilities []string

func (f *Facilities) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	var raw []string
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.Split(s, ",")
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("facilities must be a string or a list of strings: %w", err)
	}
	*f = NormalizeFacilities(raw)
	return nil
}

func NormalizeFacilities(raw []string) Facilities {
	seen := make(map[string]struct{}, len(raw))
	out := make(Facilities, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// PropertyInput carries the agent-editable listing fields.
type PropertyInput struct {
	Title       string     `json:"title"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	MinPrice    Number     `json:"minPrice"`
	MaxPrice    Number     `json:"maxPrice"`
	Bedrooms    Number     `json:"bedrooms"`
	Bathrooms   Number     `json:"bathrooms"`
	Facilities  Facilities `json:"facilities"`
}

func (in PropertyInput) normalized() PropertyInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	in.Image = strings.TrimSpace(in.Image)
	in.Facilities = NormalizeFacilities(in.Facilities)
	return in
}

// SortDirection orders public listings by minimum price.
type SortDirection string

const (
	SortNone       SortDirection = ""
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// ParseSortDirection accepts asc/ascending and desc/descending. Anything
// else, including empty, leaves the listing unsorted.
func ParseSortDirection(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return SortAscending
	case "desc", "descending":
		return SortDescending
	}
	return SortNone
}

type Filter struct {
	SearchText string
	Sort       SortDirection
}
