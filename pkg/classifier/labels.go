package classifier

import "strings"

// canonical label vocabularies per task
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"

	LabelToxic = "toxic"
	LabelClean = "clean"

	LabelMisinfo = "misinfo"
	LabelLegit   = "legit"
)

// sentimentLabels maps backend-specific sentiment labels to the canonical vocabulary
var sentimentLabels = map[string]string{
	"label_0":  LabelNegative,
	"label_1":  LabelNeutral,
	"label_2":  LabelPositive,
	"negative": LabelNegative,
	"neutral":  LabelNeutral,
	"positive": LabelPositive,
}

// toxicityLabels maps backend-specific toxicity labels to the canonical vocabulary
var toxicityLabels = map[string]string{
	"label_0":   LabelClean,
	"label_1":   LabelToxic,
	"no":        LabelClean,
	"yes":       LabelToxic,
	"non-toxic": LabelClean,
	"clean":     LabelClean,
	"toxic":     LabelToxic,
}

// misinfoLabels maps backend-specific misinformation labels to the canonical vocabulary
var misinfoLabels = map[string]string{
	"label_0": LabelLegit,
	"label_1": LabelMisinfo,
	"no":      LabelLegit,
	"yes":     LabelMisinfo,
	"legit":   LabelLegit,
	"real":    LabelLegit,
	"fake":    LabelMisinfo,
	"misinfo": LabelMisinfo,
}

// MapLabel converts a backend-specific label to the task's canonical
// vocabulary. Unknown labels map to the task's safe default.
func MapLabel(task Task, raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch task {
	case TaskSentiment:
		if label, ok := sentimentLabels[key]; ok {
			return label
		}
		return LabelNeutral
	case TaskToxicity:
		if label, ok := toxicityLabels[key]; ok {
			return label
		}
		return LabelClean
	case TaskMisinfo:
		if label, ok := misinfoLabels[key]; ok {
			return label
		}
		return LabelLegit
	default:
		return key
	}
}
