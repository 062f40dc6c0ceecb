package decider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentctx/platform/internal/errs"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Decider drives InstanceDecider's single LLM call and enforces the
// post-LLM validation invariants before handing the plan to
// InstanceSync.
type Decider struct {
	provider Provider
	schema   *jsonschema.Schema
}

func New(provider Provider) (*Decider, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan.json", strings.NewReader(planSchema)); err != nil {
		return nil, fmt.Errorf("decider: compile schema resource: %w", err)
	}
	schema, err := compiler.Compile("plan.json")
	if err != nil {
		return nil, fmt.Errorf("decider: compile schema: %w", err)
	}
	return &Decider{provider: provider, schema: schema}, nil
}

// Decide renders the prompt, invokes the provider, validates the
// response against planSchema, unmarshals it, and enforces the
// remaining semantic invariants the JSON Schema cannot express.
func (d *Decider) Decide(ctx context.Context, in Input) (*Plan, error) {
	systemPrompt, userPrompt := renderPrompt(in)

	raw, err := d.provider.GeneratePlan(ctx, systemPrompt, userPrompt, []byte(planSchema))
	if err != nil {
		return nil, errs.Transient("decider: provider call failed", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, errs.Validation("decider: planner output is not valid JSON: " + err.Error())
	}
	if err := d.schema.Validate(generic); err != nil {
		return nil, errs.Validation("decider: planner output failed schema validation: " + err.Error())
	}

	var plan Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, errs.Internal("decider: schema-valid output failed to decode", err)
	}

	if err := validatePlan(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// validatePlan enforces the plan invariants a JSON
// Schema alone cannot express: cross-field consistency within the plan.
func validatePlan(p *Plan) error {
	if p.ExecutionPath == ExecutionDirectTrigger && p.DirectTrigger == nil {
		return errs.Validation("decider: execution_path=direct_trigger requires direct_trigger to be set")
	}

	keys := make(map[string]bool, len(p.ActiveInstances))
	for _, inst := range p.ActiveInstances {
		if keys[inst.TaskKey] {
			return errs.Validation("decider: duplicate task_key " + inst.TaskKey)
		}
		keys[inst.TaskKey] = true
	}
	for _, inst := range p.ActiveInstances {
		for _, dep := range inst.DependsOn {
			if !keys[dep] {
				return errs.Validation(fmt.Sprintf("decider: %s depends_on unknown task_key %s", inst.TaskKey, dep))
			}
		}
		if err := validateJobConfig(inst); err != nil {
			return err
		}
	}
	return nil
}

func validateJobConfig(inst InstanceDict) error {
	if inst.ModuleClass != "JobModule" {
		return nil
	}
	if inst.JobConfig == nil {
		return errs.Validation("decider: " + inst.TaskKey + " is a JobModule and requires job_config")
	}
	jc := inst.JobConfig
	if jc.EndCondition != "" && jc.IntervalSeconds == 0 {
		return errs.Validation("decider: " + inst.TaskKey + " declares end_condition without interval_seconds; ongoing jobs require both")
	}
	return nil
}

// renderPrompt builds the system/user prompt pair from Input. Formatting
// only; no decision logic lives here.
func renderPrompt(in Input) (system, user string) {
	var sys bytes.Buffer
	sys.WriteString("You are the planning component of an agentic context platform. ")
	sys.WriteString("Given a user turn and the agent's current state, decide whether to run the full agent loop ")
	sys.WriteString("or trigger a tool directly, and propose the module instances needed, respecting existing ones.\n")

	var u bytes.Buffer
	fmt.Fprintf(&u, "[User input]\n%s\n\n", in.UserText)
	fmt.Fprintf(&u, "[Current user]\n%s\n\n", in.CurrentUserID)
	fmt.Fprintf(&u, "[Narrative summary]\n%s\n\n", in.NarrativeSummary)
	fmt.Fprintf(&u, "[Recent history]\n%s\n\n", in.HistoryMarkdown)
	fmt.Fprintf(&u, "[Agent awareness]\n%s\n\n", in.AwarenessText)
	fmt.Fprintf(&u, "[Capability modules]\n%s\n\n", in.CapabilityInfo)

	fmt.Fprintf(&u, "[Task instances]\n")
	for _, inst := range in.TaskInstances {
		fmt.Fprintf(&u, "- %s (%s) status=%s deps=%v\n", inst.InstanceID, inst.ModuleClass, inst.Status, inst.Dependencies)
	}
	u.WriteString("\n[Active jobs]\n")
	for id, info := range in.JobInfoMap {
		fmt.Fprintf(&u, "- %s: %s (%s) related_entity=%s\n", id, info.Title, info.JobType, info.RelatedEntityID)
	}

	return sys.String(), u.String()
}
