package paper

import "strings"

// Focus is the research-focus label assigned during enrichment.
type Focus string

const (
	FocusOffensive    Focus = "Offensive"
	FocusDefensive    Focus = "Defensive"
	FocusAdversarial  Focus = "Adversarial"
	FocusSafety       Focus = "Safety"
	FocusOther        Focus = "Other"
	FocusUnclassified Focus = "Unclassified"
)

// Focuses lists the labels a model may choose from.
var Focuses = []Focus{FocusOffensive, FocusDefensive, FocusAdversarial, FocusSafety, FocusOther}

// AttackType is the attack-category label assigned during enrichment.
type AttackType string

const (
	AttackEvasion         AttackType = "Evasion"
	AttackExtraction      AttackType = "Extraction"
	AttackInversion       AttackType = "Inversion"
	AttackPoisoning       AttackType = "Poisoning"
	AttackPromptInjection AttackType = "Prompt Injection"
	AttackOther           AttackType = "Other"
	AttackUnclassified    AttackType = "Unclassified"
)

// AttackTypes lists the labels a model may choose from. AttackOther means
// none of the specific attacks apply.
var AttackTypes = []AttackType{
	AttackEvasion,
	AttackExtraction,
	AttackInversion,
	AttackPoisoning,
	AttackPromptInjection,
	AttackOther,
}

var focusAliases = map[string]Focus{
	"offensive":   FocusOffensive,
	"defensive":   FocusDefensive,
	"adversarial": FocusAdversarial,
	"safety":      FocusSafety,
	"other":       FocusOther,
}

var attackAliases = map[string]AttackType{
	"evasion":          AttackEvasion,
	"model evasion":    AttackEvasion,
	"extraction":       AttackExtraction,
	"model extraction": AttackExtraction,
	"inversion":        AttackInversion,
	"model inversion":  AttackInversion,
	"poisoning":        AttackPoisoning,
	"model poisoning":  AttackPoisoning,
	"data poisoning":   AttackPoisoning,
	"prompt injection": AttackPromptInjection,
	"prompt-injection": AttackPromptInjection,
	"promptinjection":  AttackPromptInjection,
	"other":            AttackOther,
	"none":             AttackOther,
}

// ParseFocus maps free-form model output onto the fixed focus set.
// Anything it does not recognize becomes FocusUnclassified.
func ParseFocus(s string) Focus {
	if f, ok := focusAliases[normalizeLabel(s)]; ok {
		return f
	}
	return FocusUnclassified
}

// ParseAttackType maps free-form model output onto the fixed attack set.
// Anything it does not recognize becomes AttackUnclassified.
func ParseAttackType(s string) AttackType {
	if a, ok := attackAliases[normalizeLabel(s)]; ok {
		return a
	}
	return AttackUnclassified
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'*.:- \t\n")
	s = strings.TrimPrefix(s, "- ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}
