package plan

import "fmt"

// ProblemKind classifies a structural issue of a plan
type ProblemKind string

const (
	ProblemMissingStep   ProblemKind = "missing_step"
	ProblemMissingOutput ProblemKind = "missing_output"
	ProblemCycle         ProblemKind = "cycle"
)

// Problem is a structural issue found by Validate
type Problem struct {
	Kind    ProblemKind `json:"kind"`
	StepKey string      `json:"step_key"`
	Detail  string      `json:"detail"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.Kind, p.StepKey, p.Detail)
}

// Validate reports inputs that reference unknown steps or outputs, and steps
// that are part of or depend on a dependency cycle. Problems are reported,
// never rejected: plans come from the upstream planning system.
func (p *ExecutionPlan) Validate() []Problem {
	var problems []Problem
	for _, key := range p.order {
		for _, in := range p.nodes[key].Inputs {
			up, ok := p.nodes[in.DependsOnStepKey]
			if !ok {
				problems = append(problems, Problem{
					Kind:    ProblemMissingStep,
					StepKey: key,
					Detail:  fmt.Sprintf("input %q depends on unknown step %q", in.Name, in.DependsOnStepKey),
				})
				continue
			}
			if in.DependsOnOutputName != "" && !declaresOutput(up, in.DependsOnOutputName) {
				problems = append(problems, Problem{
					Kind:    ProblemMissingOutput,
					StepKey: key,
					Detail:  fmt.Sprintf("input %q depends on undeclared output %s.%s", in.Name, up.Key, in.DependsOnOutputName),
				})
			}
		}
	}
	for _, key := range p.cyclic() {
		problems = append(problems, Problem{Kind: ProblemCycle, StepKey: key, Detail: "step never becomes ready: dependency cycle"})
	}
	return problems
}

func declaresOutput(n StepPlanNode, name string) bool {
	for _, o := range n.Outputs {
		if o.Name == name {
			return true
		}
	}
	return false
}

// cyclic returns the steps left over after repeatedly removing steps whose
// upstream dependencies are all resolved
func (p *ExecutionPlan) cyclic() []string {
	pending := make(map[string]int, len(p.order))
	dependents := make(map[string][]string)
	for _, key := range p.order {
		for _, in := range p.nodes[key].Inputs {
			if _, ok := p.nodes[in.DependsOnStepKey]; !ok {
				continue
			}
			pending[key]++
			dependents[in.DependsOnStepKey] = append(dependents[in.DependsOnStepKey], key)
		}
	}

	var ready []string
	for _, key := range p.order {
		if pending[key] == 0 {
			ready = append(ready, key)
		}
	}
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		for _, d := range dependents[cur] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	var out []string
	for _, key := range p.order {
		if pending[key] > 0 {
			out = append(out, key)
		}
	}
	return out
}
