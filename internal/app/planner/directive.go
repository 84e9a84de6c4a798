package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

const maxDirectiveSteps = 50

// fenceRE matches fenced blocks labelled studio or json.
var fenceRE = regexp.MustCompile("(?s)```(studio|json)[ \\t]*\\r?\\n(.*?)```")

type directiveStep struct {
	Op          string         `json:"op"`
	Type        string         `json:"type"` // older prompts used "type"
	Description string         `json:"description"`
	Params      map[string]any `json:"params"`
}

// ParseDirective extracts the action plan from a model reply.
//
// The last block labelled "studio" is authoritative: if it does not decode
// into a valid step list the reply carries no plan at all. Without a studio
// block, the last "json" block that decodes cleanly is used; json blocks that
// do not match the grammar are ordinary content and are ignored.
func ParseDirective(reply string) (domain.Plan, bool) {
	matches := fenceRE.FindAllStringSubmatch(reply, -1)

	for i := len(matches) - 1; i >= 0; i-- {
		if matches[i][1] == "studio" {
			plan, err := decodeDirective(matches[i][2])
			if err != nil {
				return nil, false
			}
			return plan, true
		}
	}

	for i := len(matches) - 1; i >= 0; i-- {
		if plan, err := decodeDirective(matches[i][2]); err == nil {
			return plan, true
		}
	}
	return nil, false
}

func decodeDirective(body string) (domain.Plan, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "[") {
		return nil, fmt.Errorf("directive is not a JSON array")
	}

	var steps []directiveStep
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&steps); err != nil {
		return nil, fmt.Errorf("decode directive: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after directive")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty directive")
	}
	if len(steps) > maxDirectiveSteps {
		return nil, fmt.Errorf("directive has %d steps, limit is %d", len(steps), maxDirectiveSteps)
	}

	plan := make(domain.Plan, 0, len(steps))
	for i, s := range steps {
		name := s.Op
		if name == "" {
			name = s.Type
		}
		op := domain.Operation(name)
		if !op.Known() {
			return nil, fmt.Errorf("step %d: unknown operation %q", i+1, name)
		}
		for _, p := range op.RequiredParams() {
			if v, ok := s.Params[p]; !ok || v == nil || v == "" {
				return nil, fmt.Errorf("step %d: %s requires %q", i+1, op, p)
			}
		}

		desc := strings.TrimSpace(s.Description)
		if desc == "" {
			desc = "Run " + name
		}
		plan = append(plan, domain.Invoke(op, desc, s.Params), domain.AwaitResult())
	}
	return plan, nil
}
