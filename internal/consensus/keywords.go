package consensus

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of keyword agreement detection.
type Verdict struct {
	Agreed bool
	Reason string
}

var (
	disagreementPattern = phrasePattern("disagree*", "don't", "do not agree", "won't work", "no good", "not feasible")
	agreementPattern    = phrasePattern("agree*", "sounds good", "works for me",
		"let's do it", "yes, let's proceed", "confirmed", "approved")
	conditionalPattern = phrasePattern("but", "however", "although", "on the condition that",
		"assuming", "what about", "how about", "would need")
	questionPattern = phrasePattern("what if", "how will", "what happens when", "what do you think",
		"should we consider", "i'm concerned about", "not sure about")
)

const minUndecidedLength = 30

// phrasePattern matches any of phrases on word boundaries, ignoring case.
// A trailing '*' turns a phrase into a stem, so "agree*" also matches
// "agrees" and "agreement".
func phrasePattern(phrases ...string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		if stem, ok := strings.CutSuffix(p, "*"); ok {
			quoted[i] = regexp.QuoteMeta(stem) + `\w*`
			continue
		}
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// DetectAgreement is the keyword fallback used when no parameter ledger is
// active. Disagreement wins over agreement, and agreement hedged by a
// condition or a question does not count.
func DetectAgreement(reply string) Verdict {
	text := strings.ReplaceAll(strings.TrimSpace(reply), "’", "'")

	if disagreementPattern.MatchString(text) {
		return Verdict{Reason: "disagreement expressed"}
	}

	agrees := agreementPattern.MatchString(text)
	conditional := conditionalPattern.MatchString(text)
	questioning := questionPattern.MatchString(text)

	switch {
	case agrees && !conditional && !questioning:
		return Verdict{Agreed: true, Reason: "explicit agreement"}
	case agrees && conditional:
		return Verdict{Reason: "conditional agreement"}
	case questioning:
		return Verdict{Reason: "open question raised"}
	case len(text) < minUndecidedLength:
		return Verdict{Reason: "reply too short to judge"}
	default:
		return Verdict{Reason: "no agreement detected"}
	}
}
