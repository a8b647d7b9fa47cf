// Package catalog matches spoken service names against a salon's service list.
package catalog

import (
	"regexp"
	"sort"
	"strings"

	"github.com/wolfman30/salon-voice-booking/internal/salon"
)

// Resolution is the outcome of matching requested service names.
type Resolution struct {
	TotalDurationMinutes int             `json:"total_duration_minutes"`
	MatchedServiceIDs    []string        `json:"matched_service_ids"`
	Matched              []salon.Service `json:"matched"`
	Unmatched            []string        `json:"unmatched"`
}

var splitter = regexp.MustCompile(`(?i)\s*(?:,|&|\band\b)\s*`)

// SplitRequested breaks free-form entries like "manicure and pedicure" into
// individual names, dropping blanks.
func SplitRequested(requested []string) []string {
	var out []string
	for _, entry := range requested {
		for _, part := range splitter.Split(entry, -1) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Normalize lowercases, trims and collapses inner whitespace.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Sorted returns the catalog in match order: normalized name, then ID.
func Sorted(services []salon.Service) []salon.Service {
	out := append([]salon.Service(nil), services...)
	sort.SliceStable(out, func(i, j int) bool {
		ni, nj := Normalize(out[i].Name), Normalize(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Match finds the catalog entry for one requested name. An exact name wins,
// then the singular form, then the first entry (in Sorted order) whose name
// contains the request or is contained by it.
func Match(requested string, services []salon.Service) (salon.Service, bool) {
	key := Normalize(requested)
	if key == "" {
		return salon.Service{}, false
	}
	ordered := Sorted(services)
	candidates := []string{key}
	if singular := strings.TrimSuffix(key, "s"); singular != key && singular != "" {
		candidates = append(candidates, singular)
	}
	for _, c := range candidates {
		for _, s := range ordered {
			if Normalize(s.Name) == c {
				return s, true
			}
		}
	}
	for _, s := range ordered {
		name := Normalize(s.Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, key) || strings.Contains(key, name) {
			return s, true
		}
	}
	return salon.Service{}, false
}

// Resolve matches every requested name. Unmatched names still count the
// default duration so the slot is never under-booked, and an empty request
// counts as one default-length appointment. A service requested twice is
// counted once.
func Resolve(requested []string, services []salon.Service) Resolution {
	names := SplitRequested(requested)
	res := Resolution{}
	if len(names) == 0 {
		res.TotalDurationMinutes = salon.DefaultDurationMinutes
		return res
	}
	seen := make(map[string]bool)
	for _, name := range names {
		svc, ok := Match(name, services)
		if !ok {
			res.Unmatched = append(res.Unmatched, name)
			res.TotalDurationMinutes += salon.DefaultDurationMinutes
			continue
		}
		if seen[svc.ID] {
			continue
		}
		seen[svc.ID] = true
		res.Matched = append(res.Matched, svc)
		res.MatchedServiceIDs = append(res.MatchedServiceIDs, svc.ID)
		res.TotalDurationMinutes += svc.EffectiveDuration()
	}
	return res
}

// Names returns the matched service names in request order.
func (r Resolution) Names() []string {
	out := make([]string, 0, len(r.Matched))
	for _, s := range r.Matched {
		out = append(out, s.Name)
	}
	return out
}

// Describe renders the matched services for speech: "Manicure",
// "Manicure and Pedicure", "Manicure, Pedicure and Gel Polish".
func (r Resolution) Describe() string {
	return JoinSpoken(r.Names())
}

// JoinSpoken joins items with commas and a final "and".
func JoinSpoken(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// ByIDs returns the catalog entries for ids, skipping unknown IDs.
func ByIDs(ids []string, services []salon.Service) []salon.Service {
	byID := make(map[string]salon.Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}
	var out []salon.Service
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}
