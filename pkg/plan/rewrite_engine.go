package plan

import (
	"fmt"

	"github.com/go-logr/logr"
)

// Rule is a plan rewrite rule.
type Rule interface {
	Name() string
	CanApply(plan *Plan) bool
	Apply(plan *Plan) error
}

// RewriteEngine applies a set of rewrite rules to a plan until fixpoint.
type RewriteEngine struct {
	rules         []Rule
	maxIterations int
	log           logr.Logger
}

// NewRewriteEngine creates a rewrite engine with the default rules.
func NewRewriteEngine(log logr.Logger) *RewriteEngine {
	re := &RewriteEngine{
		rules:         make([]Rule, 0),
		maxIterations: 20,
		log:           log.WithName("rewrite-engine"),
	}

	// Add rules in order of application priority
	re.AddRule(&ConstantPartitionElisionRule{})
	re.AddRule(&IncrementalAccumulatorRule{})

	return re
}

func (re *RewriteEngine) AddRule(rule Rule) {
	re.rules = append(re.rules, rule)
}

// Optimize applies all rules until fixpoint.
func (re *RewriteEngine) Optimize(plan *Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	changed := true
	iterations := 0

	for changed && iterations < re.maxIterations {
		changed = false
		iterations++

		for _, rule := range re.rules {
			if rule.CanApply(plan) {
				re.log.V(2).Info("applying rule", "rule", rule.Name())

				if err := rule.Apply(plan); err != nil {
					return fmt.Errorf("rule %s failed: %w", rule.Name(), err)
				}
				plan.Rules = append(plan.Rules, rule.Name())

				changed = true
				break // Apply one rule at a time
			}
		}
	}

	if changed {
		return fmt.Errorf("rewrite engine did not converge after %d iterations", re.maxIterations)
	}

	re.log.V(1).Info("plan optimization converged", "iterations", iterations,
		"rules", plan.Rules)

	return plan.Validate()
}
