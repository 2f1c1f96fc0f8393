package fieldschema

import (
	"fmt"
	"sort"
)

// ComputedOrder returns the step's computed fields sorted so that every
// field appears after the computed fields it depends on. The available
// predicate answers whether a non-computed dependency name resolves (same
// step or a prior step). A dependency that resolves nowhere, or a dependency
// cycle, is a configuration error.
func ComputedOrder(fields []Config, available func(name string) bool) ([]Config, error) {
	computed := make(map[string]Config)
	names := make([]string, 0)
	for _, f := range fields {
		if f.Kind == KindComputed {
			computed[f.Name] = f
			names = append(names, f.Name)
		}
	}
	// Deterministic walk order keeps error messages stable
	sort.Strings(names)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(computed))
	ordered := make([]Config, 0, len(computed))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("computed field '%s' participates in a dependency cycle", name)
		}
		state[name] = visiting
		cfg := computed[name]
		for _, dep := range cfg.DependsOn {
			if depCfg, ok := computed[dep]; ok {
				if err := visit(depCfg.Name); err != nil {
					return err
				}
				continue
			}
			if !available(dep) {
				return fmt.Errorf("computed field '%s' depends on unknown field '%s'", name, dep)
			}
		}
		state[name] = done
		ordered = append(ordered, cfg)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
