package consensus

import (
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// CheckParameterAlignment runs the deterministic alignment pass over every
// parameter that is not aligned yet, mutating the ledger in place, and
// returns the ledger-wide AllAligned flag.
//
// A parameter aligns when its stated positions, trimmed and case-folded and
// ignoring the "no preference stated" sentinel, collapse to a single value
// (or to nothing at all). The aligned value is the first remaining position
// as the agent wrote it, trimmed. It is not necessarily Positions[0]: a
// leading "no preference stated" entry is skipped, and surrounding
// whitespace is dropped.
func CheckParameterAlignment(analysis *core.ParameterAnalysis) bool {
	if analysis == nil {
		return false
	}

	for i := range analysis.Parameters {
		param := &analysis.Parameters[i]
		if param.IsAligned {
			continue
		}

		distinct := make(map[string]struct{})
		first := ""
		for _, pos := range param.Positions {
			norm := core.NormalizePosition(pos.Position)
			if norm == "" || norm == core.NoPreference {
				continue
			}
			if len(distinct) == 0 {
				first = strings.TrimSpace(pos.Position)
			}
			distinct[norm] = struct{}{}
		}

		switch len(distinct) {
		case 0:
			param.IsAligned = true
		case 1:
			param.IsAligned = true
			param.AlignedValue = first
		}
	}

	return analysis.Recompute()
}

// AlignedValues renders "name=value" pairs for aligned parameters.
func AlignedValues(analysis *core.ParameterAnalysis) string {
	if analysis == nil {
		return ""
	}
	parts := make([]string, 0, len(analysis.Parameters))
	for _, p := range analysis.Parameters {
		if p.IsAligned {
			parts = append(parts, p.Name+"="+p.AlignedValue)
		}
	}
	return strings.Join(parts, ", ")
}
