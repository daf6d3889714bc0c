package topics

import (
	"regexp"
	"strings"
)

// Match is one extracted topic label plus the keyword occurrences that
// produced it. Fallback labels carry no keywords.
type Match struct {
	Label    string
	Keywords []string
}

// rule pairs a keyword pattern with the label it contributes. Rules are
// evaluated in order and every matching rule contributes its label; this is
// all-matches-contribute, not first-match-wins.
type rule struct {
	pattern *regexp.Regexp
	label   string
}

var rules = []rule{
	{regexp.MustCompile(`(?i)weather|temperature|rain|sun|cloud|storm`), "Weather"},
	{regexp.MustCompile(`(?i)reminder|remind|remember|schedule|appointment`), "Reminders"},
	{regexp.MustCompile(`(?i)task|todo|work|project|deadline`), "Task Management"},
	{regexp.MustCompile(`(?i)code|programming|javascript|python|development`), "Coding"},
	{regexp.MustCompile(`(?i)calendar|event|meeting|date|time`), "Calendar"},
	{regexp.MustCompile(`(?i)news|update|current|today|latest`), "News & Updates"},
	{regexp.MustCompile(`(?i)help|how to|tutorial|guide|learn`), "Help & Tutorials"},
	{regexp.MustCompile(`(?i)music|song|playlist|artist|album`), "Music"},
	{regexp.MustCompile(`(?i)movie|film|show|series|watch`), "Entertainment"},
	{regexp.MustCompile(`(?i)food|recipe|cook|restaurant|eat`), "Food & Cooking"},
	{regexp.MustCompile(`(?i)health|exercise|workout|fitness|diet`), "Health & Fitness"},
	{regexp.MustCompile(`(?i)travel|trip|vacation|flight|hotel`), "Travel"},
	{regexp.MustCompile(`(?i)money|finance|budget|invest|stock`), "Finance"},
	{regexp.MustCompile(`(?i)game|play|gaming|xbox|playstation`), "Gaming"},
	{regexp.MustCompile(`(?i)study|learn|education|school|course`), "Education"},
}

var gratitudePattern = regexp.MustCompile(`(?i)thanks|thank you|appreciate`)

// Fallback labels, applied only when no keyword rule matches.
const (
	labelQuestions   = "Questions"
	labelGratitude   = "Gratitude"
	labelGeneralChat = "General Chat"
)

// Extract maps free text to topic labels. Every rule whose pattern matches
// contributes its label; duplicates collapse. If and only if no rule matches,
// exactly one fallback label is assigned: Questions for text containing a
// question mark, Gratitude for gratitude phrasing, General Chat otherwise.
// The result is never empty.
func Extract(text string) []string {
	matches := ExtractMatches(text)
	labels := make([]string, len(matches))
	for i, m := range matches {
		labels[i] = m.Label
	}
	return labels
}

// ExtractMatches is Extract with the matched keywords preserved per label,
// in rule order.
func ExtractMatches(text string) []Match {
	var matches []Match
	seen := make(map[string]bool)

	for _, r := range rules {
		found := r.pattern.FindAllString(text, -1)
		if len(found) == 0 || seen[r.label] {
			continue
		}
		seen[r.label] = true
		matches = append(matches, Match{Label: r.label, Keywords: dedupeLower(found)})
	}
	if len(matches) > 0 {
		return matches
	}

	// Fallback classification: mutually exclusive, match-absent-only.
	switch {
	case strings.Contains(text, "?"):
		return []Match{{Label: labelQuestions}}
	case gratitudePattern.MatchString(text):
		return []Match{{Label: labelGratitude}}
	default:
		return []Match{{Label: labelGeneralChat}}
	}
}

func dedupeLower(words []string) []string {
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		lw := strings.ToLower(w)
		if seen[lw] {
			continue
		}
		seen[lw] = true
		out = append(out, lw)
	}
	return out
}
