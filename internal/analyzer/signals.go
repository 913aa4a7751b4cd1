// Package analyzer classifies task payloads into complexity tiers.
package analyzer

// Signal keyword tables are the single source of truth for classification.
// Both the analyzer and the distribution engine consult these so a payload
// always classifies the same way.

// actionVerbs are verbs that indicate a discrete unit of work. Distinct
// matches are counted, not total occurrences.
var actionVerbs = []string{
	"implement",
	"add",
	"create",
	"build",
	"write",
	"refactor",
	"migrate",
	"test",
	"deploy",
	"fix",
	"update",
	"remove",
	"delete",
	"document",
	"integrate",
	"configure",
	"design",
	"review",
	"optimize",
	"validate",
	"extract",
	"rename",
	"wire",
	"expose",
	"instrument",
}

// deliverableMarkers indicate named sub-deliverables in prose.
var deliverableMarkers = []string{
	"deliverable",
	"milestone",
	"phase",
	"component",
	"module",
	"endpoint",
	"subtask",
}

// coordinationKeywords indicate cross-team dependencies or approval gates.
// Any of these pushes the task toward the higher tiers.
var coordinationKeywords = []string{
	"cross-team",
	"cross team",
	"approval",
	"sign-off",
	"signoff",
	"stakeholder",
	"compliance",
	"legal review",
	"security review",
	"coordinate with",
	"escalate to",
}
