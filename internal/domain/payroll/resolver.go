package payroll

import (
	"sort"
	"strings"
)

// evaluationPlan is a validated component set in dependency order. The order
// includes VarGrossSalary at the point where gross becomes known.
type evaluationPlan struct {
	order      []string
	components map[string]SalaryComponent
	formulas   map[string]*Expression
}

// ResolveOrder returns the component codes in an order where every component
// follows the components it depends on. Ties are broken by ascending code.
func ResolveOrder(components []SalaryComponent) ([]string, error) {
	plan, err := planEvaluation(components)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(plan.order)-1)
	for _, code := range plan.order {
		if code != VarGrossSalary {
			out = append(out, code)
		}
	}
	return out, nil
}

func planEvaluation(components []SalaryComponent) (*evaluationPlan, error) {
	if err := validateComponents(components); err != nil {
		return nil, err
	}
	plan := &evaluationPlan{
		components: make(map[string]SalaryComponent, len(components)),
		formulas:   map[string]*Expression{},
	}
	for _, component := range components {
		plan.components[component.Code] = component
	}

	deps := make(map[string][]string, len(components)+1)
	deps[VarGrossSalary] = nil
	for _, component := range components {
		if component.Type == ComponentTypeAllowance {
			deps[VarGrossSalary] = append(deps[VarGrossSalary], component.Code)
		}
		switch component.CalculationType {
		case CalculationPercentageOfGross:
			deps[component.Code] = []string{VarGrossSalary}
		case CalculationFormula:
			expr, err := ParseFormula(component.Formula)
			if err != nil {
				return nil, &ComponentError{Code: component.Code, Err: err}
			}
			plan.formulas[component.Code] = expr
			var refs []string
			for _, name := range expr.Variables() {
				if _, ok := plan.components[name]; ok || name == VarGrossSalary {
					refs = append(refs, name)
				}
			}
			deps[component.Code] = refs
		default:
			deps[component.Code] = nil
		}
	}

	order, err := topologicalOrder(deps)
	if err != nil {
		return nil, err
	}
	plan.order = order
	return plan, nil
}

func validateComponents(components []SalaryComponent) error {
	seen := make(map[string]struct{}, len(components))
	for _, component := range components {
		code := component.Code
		switch {
		case strings.TrimSpace(code) == "":
			return &InvalidComponentError{Reason: "code is required"}
		case code == VarBasicSalary || code == VarGrossSalary:
			return &InvalidComponentError{Code: code, Reason: "code is reserved"}
		case !component.Type.Valid():
			return &InvalidComponentError{Code: code, Reason: "unknown component type " + string(component.Type)}
		case !component.CalculationType.Valid():
			return &InvalidComponentError{Code: code, Reason: "unknown calculation type " + string(component.CalculationType)}
		case component.CalculationType == CalculationFormula && strings.TrimSpace(component.Formula) == "":
			return &InvalidComponentError{Code: code, Reason: "formula is required"}
		}
		if _, dup := seen[code]; dup {
			return &InvalidComponentError{Code: code, Reason: "duplicate code"}
		}
		seen[code] = struct{}{}
	}
	return nil
}

// topologicalOrder runs Kahn's algorithm over deps (node -> nodes it needs),
// always draining the smallest ready node first.
func topologicalOrder(deps map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for node := range deps {
		indegree[node] = 0
	}
	for node, needs := range deps {
		for _, need := range uniqueSorted(needs) {
			indegree[node]++
			dependents[need] = append(dependents[need], node)
		}
	}

	ready := make([]string, 0, len(deps))
	for node, degree := range indegree {
		if degree == 0 {
			ready = append(ready, node)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(deps))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)
		for _, dependent := range dependents[node] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = insertSorted(ready, dependent)
			}
		}
	}

	if len(order) < len(deps) {
		return nil, &CircularDependencyError{Cycle: findCycle(deps, indegree)}
	}
	return order, nil
}

// findCycle walks unresolved nodes from the smallest one, always following
// the smallest unresolved dependency, until a node repeats.
func findCycle(deps map[string][]string, indegree map[string]int) []string {
	remaining := make([]string, 0)
	for node, degree := range indegree {
		if degree > 0 {
			remaining = append(remaining, node)
		}
	}
	sort.Strings(remaining)
	if len(remaining) == 0 {
		return nil
	}

	position := map[string]int{}
	path := []string{}
	node := remaining[0]
	for {
		if at, seen := position[node]; seen {
			cycle := append([]string{}, path[at:]...)
			return append(cycle, node)
		}
		position[node] = len(path)
		path = append(path, node)
		next := ""
		for _, need := range uniqueSorted(deps[node]) {
			if indegree[need] > 0 {
				next = need
				break
			}
		}
		if next == "" {
			return path
		}
		node = next
	}
}

func uniqueSorted(values []string) []string {
	if len(values) < 2 {
		return values
	}
	out := append([]string{}, values...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

func insertSorted(values []string, value string) []string {
	i := sort.SearchStrings(values, value)
	values = append(values, "")
	copy(values[i+1:], values[i:])
	values[i] = value
	return values
}
