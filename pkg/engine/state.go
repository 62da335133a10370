package engine

// CapabilitySet is the ordered set of units currently present on the machine.
// Iteration order always follows catalog declaration order.
type CapabilitySet struct {
	units []Unit
	ids   map[string]bool
}

// NewCapabilitySet builds a capability set from units, ordered as given.
func NewCapabilitySet(units ...Unit) CapabilitySet {
	cs := CapabilitySet{ids: make(map[string]bool, len(units))}
	for _, u := range units {
		if cs.ids[u.ID] {
			continue
		}
		cs.ids[u.ID] = true
		cs.units = append(cs.units, u.clone())
	}
	return cs
}

// Has returns true if the unit is present.
func (cs CapabilitySet) Has(id string) bool {
	return cs.ids[id]
}

// Units returns the present units.
func (cs CapabilitySet) Units() []Unit {
	out := make([]Unit, len(cs.units))
	copy(out, cs.units)
	return out
}

// IDs returns the present unit IDs.
func (cs CapabilitySet) IDs() []string {
	ids := make([]string, len(cs.units))
	for i, u := range cs.units {
		ids[i] = u.ID
	}
	return ids
}

// Len returns the number of present units.
func (cs CapabilitySet) Len() int {
	return len(cs.units)
}

// State is the machine view accumulated during one run. Backends read it to
// learn what is present; only the runner records into it.
type State struct {
	catalog *Catalog
	present map[string]bool
}

// NewState creates an empty state over a catalog.
func NewState(catalog *Catalog) *State {
	return &State{catalog: catalog, present: make(map[string]bool)}
}

// Catalog returns the catalog the run is converging.
func (s *State) Catalog() *Catalog {
	return s.catalog
}

// MarkPresent records a unit as present.
func (s *State) MarkPresent(id string) {
	s.present[id] = true
}

// IsPresent returns true if the unit has been recorded as present.
func (s *State) IsPresent(id string) bool {
	return s.present[id]
}

// Capabilities returns every recorded unit in catalog order.
func (s *State) Capabilities() CapabilitySet {
	var units []Unit
	for _, u := range s.catalog.units {
		if s.present[u.ID] {
			units = append(units, u)
		}
	}
	return NewCapabilitySet(units...)
}

// CapabilitiesFor returns the present units contributing to a generated-file unit.
func (s *State) CapabilitiesFor(artifactUnit Unit) CapabilitySet {
	var units []Unit
	for _, u := range s.catalog.Contributors(artifactUnit) {
		if s.present[u.ID] {
			units = append(units, u)
		}
	}
	return NewCapabilitySet(units...)
}

// Capabilities returns the units present at the end of the run, in catalog order.
func (r *RunReport) Capabilities(catalog *Catalog) CapabilitySet {
	state := NewState(catalog)
	for _, res := range r.Results {
		if res.Outcome.Kind.IsSuccess() {
			state.MarkPresent(res.Unit.ID)
		}
	}
	return state.Capabilities()
}
