package availability

import "github.com/wolfman30/salon-voice-booking/internal/salon"

// Qualified reports whether skills cover every required service ID.
// Nothing required means everyone qualifies.
func Qualified(skills, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		have[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

// QualifiedTechnicians keeps the technicians able to perform every required service.
func QualifiedTechnicians(techs []salon.Technician, required []string) []salon.Technician {
	var out []salon.Technician
	for _, t := range techs {
		if Qualified(t.Skills, required) {
			out = append(out, t)
		}
	}
	return out
}
