// Package plan models a run's static step graph and plans re-execution.
package plan

import (
	"fmt"
	"slices"
	"strings"
)

// StepInput is a declared input of a step and the upstream output it reads
type StepInput struct {
	Name                string `yaml:"name" json:"name"`
	DependsOnStepKey    string `yaml:"depends_on_step" json:"depends_on_step"`
	DependsOnOutputName string `yaml:"depends_on_output,omitempty" json:"depends_on_output,omitempty"`
}

// StepOutput is a declared output of a step
type StepOutput struct {
	Name     string `yaml:"name" json:"name"`
	TypeName string `yaml:"type,omitempty" json:"type,omitempty"`
}

// StepPlanNode is a step of the execution plan
type StepPlanNode struct {
	Key     string       `yaml:"key" json:"key"`
	Solid   string       `yaml:"solid,omitempty" json:"solid,omitempty"`
	Inputs  []StepInput  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []StepOutput `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// SolidName returns the name of the unit of work behind the step. Step keys
// look like "solid.compute", so the part before the last dot is used when no
// name was declared.
func (n StepPlanNode) SolidName() string {
	if n.Solid != "" {
		return n.Solid
	}
	if i := strings.LastIndex(n.Key, "."); i > 0 {
		return n.Key[:i]
	}
	return n.Key
}

func (n StepPlanNode) clone() StepPlanNode {
	c := n
	c.Inputs = slices.Clone(n.Inputs)
	c.Outputs = slices.Clone(n.Outputs)
	return c
}

// ExecutionPlan is the immutable step graph of a run
type ExecutionPlan struct {
	nodes     map[string]StepPlanNode
	order     []string
	persisted bool
}

// NewExecutionPlan builds a plan from nodes in declaration order
func NewExecutionPlan(nodes []StepPlanNode, artifactsPersisted bool) (*ExecutionPlan, error) {
	p := &ExecutionPlan{
		nodes:     make(map[string]StepPlanNode, len(nodes)),
		order:     make([]string, 0, len(nodes)),
		persisted: artifactsPersisted,
	}
	for i, n := range nodes {
		if n.Key == "" {
			return nil, fmt.Errorf("step %d has no key", i)
		}
		if _, dup := p.nodes[n.Key]; dup {
			return nil, fmt.Errorf("duplicate step key %q", n.Key)
		}
		p.nodes[n.Key] = n.clone()
		p.order = append(p.order, n.Key)
	}
	return p, nil
}

// Node returns the step with the given key
func (p *ExecutionPlan) Node(key string) (StepPlanNode, bool) {
	n, ok := p.nodes[key]
	if !ok {
		return StepPlanNode{}, false
	}
	return n.clone(), true
}

// Has reports whether the plan contains key
func (p *ExecutionPlan) Has(key string) bool {
	_, ok := p.nodes[key]
	return ok
}

// Keys returns the step keys in declaration order
func (p *ExecutionPlan) Keys() []string {
	return slices.Clone(p.order)
}

// Len returns the number of steps
func (p *ExecutionPlan) Len() int {
	return len(p.order)
}

// ArtifactsPersisted reports whether step outputs are durably stored and can
// be reused by a re-execution
func (p *ExecutionPlan) ArtifactsPersisted() bool {
	return p.persisted
}

// Downstream returns key followed by every step that transitively depends on
// it, in plan declaration order. Cyclic graphs terminate.
func (p *ExecutionPlan) Downstream(key string) []string {
	if !p.Has(key) {
		return nil
	}

	dependents := make(map[string][]string)
	for _, k := range p.order {
		for _, in := range p.nodes[k].Inputs {
			dependents[in.DependsOnStepKey] = append(dependents[in.DependsOnStepKey], k)
		}
	}

	seen := map[string]bool{key: true}
	queue := []string{key}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range dependents[cur] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}

	out := []string{key}
	for _, k := range p.order {
		if k != key && seen[k] {
			out = append(out, k)
		}
	}
	return out
}
