// Package consolidate merges red flags emitted independently by multiple
// agents into one alert per inferred topic. Consolidation is pure and
// idempotent: it is recomputed from the full per-agent flag set on every
// request and persists nothing.
package consolidate

import (
	"sort"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// Consolidate groups every raw flag by inferred topic and merges each group:
// severity takes the maximum seen, text fields take the longest non-empty
// value (first seen wins ties), detectedBy is the ordered agent set, and
// every raw flag is retained verbatim in Duplicates. The result is sorted
// strongest severity first, then by detector consensus.
func Consolidate(perAgent []model.AgentFlags, rules *TopicRules) []model.ConsolidatedFlag {
	if rules == nil {
		rules = DefaultTopicRules()
	}

	byTopic := make(map[string]*model.ConsolidatedFlag)
	var order []string

	for _, agent := range perAgent {
		for _, flag := range agent.Flags {
			topic := rules.Infer(flag.Title, flag.Category)

			cf, ok := byTopic[topic]
			if !ok {
				cf = &model.ConsolidatedFlag{Topic: topic, Severity: flag.Severity}
				byTopic[topic] = cf
				order = append(order, topic)
			}

			cf.Severity = model.MaxSeverity(cf.Severity, flag.Severity)
			cf.Title = longest(cf.Title, flag.Title)
			cf.Description = longest(cf.Description, flag.Description)
			cf.Evidence = longest(cf.Evidence, flag.Evidence)
			cf.Impact = longest(cf.Impact, flag.Impact)
			cf.Question = longest(cf.Question, flag.Question)

			if !contains(cf.DetectedBy, agent.Agent) {
				cf.DetectedBy = append(cf.DetectedBy, agent.Agent)
			}
			cf.Duplicates = append(cf.Duplicates, model.FlagInstance{Agent: agent.Agent, Flag: flag})
		}
	}

	out := make([]model.ConsolidatedFlag, 0, len(order))
	for _, topic := range order {
		out = append(out, *byTopic[topic])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return len(out[i].DetectedBy) > len(out[j].DetectedBy)
	})
	return out
}

// Flatten expands consolidated flags back into per-agent raw lists,
// preserving each duplicate's originating agent. Consolidating a flattened
// output reproduces the same consolidated set.
func Flatten(flags []model.ConsolidatedFlag) []model.AgentFlags {
	byAgent := make(map[string]*model.AgentFlags)
	var order []string

	for _, cf := range flags {
		for _, dup := range cf.Duplicates {
			af, ok := byAgent[dup.Agent]
			if !ok {
				af = &model.AgentFlags{Agent: dup.Agent}
				byAgent[dup.Agent] = af
				order = append(order, dup.Agent)
			}
			af.Flags = append(af.Flags, dup.Flag)
		}
	}

	out := make([]model.AgentFlags, 0, len(order))
	for _, agent := range order {
		out = append(out, *byAgent[agent])
	}
	return out
}

// longest keeps the incumbent unless the candidate is strictly longer.
func longest(current, candidate string) string {
	if len(candidate) > len(current) {
		return candidate
	}
	return current
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
