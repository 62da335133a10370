package engine

import (
	"fmt"
	"sort"
)

// Catalog is the immutable, ordered set of units a run converges toward.
// It is built once at start-up and passed explicitly to the planner and runner.
type Catalog struct {
	units []Unit
	index map[string]int
}

// NewCatalog validates units and returns a catalog preserving declaration order.
// Empty or duplicate identities, unknown kinds and dependencies on units that
// are not in the catalog are configuration errors.
func NewCatalog(units ...Unit) (*Catalog, error) {
	c := &Catalog{
		units: make([]Unit, 0, len(units)),
		index: make(map[string]int, len(units)),
	}

	for _, u := range units {
		if u.ID == "" {
			return nil, NewConfigurationError("unit has empty ID", nil).
				WithCode(ErrCodeValidation)
		}
		if _, exists := c.index[u.ID]; exists {
			return nil, NewConfigurationError(fmt.Sprintf("duplicate unit ID: %s", u.ID), nil).
				WithCode(ErrCodeDuplicateUnit).WithUnit(u.ID)
		}
		if err := u.Kind.Validate(); err != nil {
			return nil, NewConfigurationError("invalid unit", err).
				WithCode(ErrCodeValidation).WithUnit(u.ID)
		}
		if u.Kind == KindGeneratedFile && u.Artifact == nil {
			return nil, NewConfigurationError("generated-file unit has no artifact", nil).
				WithCode(ErrCodeValidation).WithUnit(u.ID)
		}
		c.index[u.ID] = len(c.units)
		c.units = append(c.units, u.clone())
	}

	// Generated files are rendered after every contributor is finalized.
	for i, u := range c.units {
		if u.Kind != KindGeneratedFile {
			continue
		}
		for _, contributor := range c.Contributors(u) {
			if !containsString(u.After, contributor.ID) && !containsString(u.DependsOn, contributor.ID) &&
				!containsString(contributor.DependsOn, u.ID) && !containsString(contributor.After, u.ID) {
				c.units[i].After = append(c.units[i].After, contributor.ID)
			}
		}
	}

	for _, u := range c.units {
		for _, dep := range u.Dependencies() {
			if _, exists := c.index[dep.TargetID]; !exists {
				return nil, NewConfigurationError(
					fmt.Sprintf("unit %s depends on non-existent unit %s", u.ID, dep.TargetID),
					nil,
				).WithCode(ErrCodeUnknownDependency).WithUnit(u.ID)
			}
		}
	}

	return c, nil
}

// Len returns the number of units.
func (c *Catalog) Len() int {
	return len(c.units)
}

// Units returns a copy of every unit in declaration order.
func (c *Catalog) Units() []Unit {
	out := make([]Unit, len(c.units))
	for i, u := range c.units {
		out[i] = u.clone()
	}
	return out
}

// Lookup returns the unit with the given ID.
func (c *Catalog) Lookup(id string) (Unit, bool) {
	i, ok := c.index[id]
	if !ok {
		return Unit{}, false
	}
	return c.units[i].clone(), true
}

// Index returns the declaration position of a unit, or -1 if unknown.
func (c *Catalog) Index(id string) int {
	i, ok := c.index[id]
	if !ok {
		return -1
	}
	return i
}

// IDs returns unit IDs in declaration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.units))
	for i, u := range c.units {
		ids[i] = u.ID
	}
	return ids
}

// Select returns a catalog holding the named units plus everything they
// transitively require. Ordering edges to units outside the selection are dropped.
func (c *Catalog) Select(ids []string) (*Catalog, error) {
	keep := make(map[string]bool)
	var visit func(id string) error
	visit = func(id string) error {
		if keep[id] {
			return nil
		}
		i, ok := c.index[id]
		if !ok {
			return NewConfigurationError(fmt.Sprintf("unknown unit: %s", id), nil).
				WithCode(ErrCodeUnknownDependency).WithUnit(id)
		}
		keep[id] = true
		unit := c.units[i]
		for _, dep := range unit.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		// A generated file rendered from a partial capability set would drop content.
		if unit.Kind == KindGeneratedFile {
			for _, contributor := range c.Contributors(unit) {
				if err := visit(contributor.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	selected := make([]Unit, 0, len(keep))
	for _, u := range c.units {
		if !keep[u.ID] {
			continue
		}
		u = u.clone()
		after := u.After[:0]
		for _, id := range u.After {
			if keep[id] {
				after = append(after, id)
			}
		}
		u.After = after
		selected = append(selected, u)
	}
	return NewCatalog(selected...)
}

// Contributors returns the units whose shell fragments feed the given
// generated-file unit, in declaration order.
func (c *Catalog) Contributors(artifactUnit Unit) []Unit {
	var allowed map[string]bool
	if artifactUnit.Artifact != nil && len(artifactUnit.Artifact.Sources) > 0 {
		allowed = make(map[string]bool, len(artifactUnit.Artifact.Sources))
		for _, id := range artifactUnit.Artifact.Sources {
			allowed[id] = true
		}
	}
	var out []Unit
	for _, u := range c.units {
		if u.ID == artifactUnit.ID || u.Kind == KindGeneratedFile || u.Shell.IsEmpty() {
			continue
		}
		if allowed != nil && !allowed[u.ID] {
			continue
		}
		out = append(out, u.clone())
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// sortByIndex orders unit IDs by catalog declaration order.
func (c *Catalog) sortByIndex(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return c.index[ids[i]] < c.index[ids[j]]
	})
}
