// Package validation checks operation results against the post-condition
// rules registered for each operation kind. Rules never short-circuit: every
// registered rule runs and every violation is reported, so callers can assert
// completeness instead of fixing one failure at a time.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"warden/internal/guard/models"
)

// Rule is one pluggable post-condition predicate. Check returns nil when the
// result satisfies the rule.
type Rule struct {
	Name  string
	Check func(result models.OperationResult) error
}

// Error aggregates every violated rule for one validation pass.
type Error struct {
	Reasons []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("result validation failed: %s", strings.Join(e.Reasons, "; "))
}

// Registry holds the rules per operation kind. Domain packages register their
// rules at startup; the registry itself carries no domain knowledge.
type Registry struct {
	mu    sync.RWMutex
	rules map[string][]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string][]Rule)}
}

// Register appends rules for an operation kind.
func (r *Registry) Register(kind string, rules ...Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[kind] = append(r.rules[kind], rules...)
}

// Validate runs all rules registered for kind against result. Returns a
// *Error listing every violation, or nil when all rules pass. Kinds with no
// registered rules pass vacuously.
func (r *Registry) Validate(result models.OperationResult, kind string) error {
	r.mu.RLock()
	rules := r.rules[kind]
	r.mu.RUnlock()

	var reasons []string
	for _, rule := range rules {
		if err := rule.Check(result); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", rule.Name, err))
		}
	}

	if len(reasons) > 0 {
		return &Error{Reasons: reasons}
	}
	return nil
}

// RequireSuccess is a rule rejecting results whose Success flag is false.
func RequireSuccess() Rule {
	return Rule{
		Name: "require_success",
		Check: func(result models.OperationResult) error {
			if !result.Success {
				return fmt.Errorf("operation reported failure")
			}
			return nil
		},
	}
}

// RequireFields is a rule rejecting results missing any of the named data
// fields.
func RequireFields(names ...string) Rule {
	return Rule{
		Name: "require_fields",
		Check: func(result models.OperationResult) error {
			var missing []string
			for _, name := range names {
				if result.Field(name) == nil {
					missing = append(missing, name)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
