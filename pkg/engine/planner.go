package engine

import (
	"github.com/rs/zerolog"
)

// Stage is a set of units with no dependency edges between them.
type Stage struct {
	Index int    `json:"index"`
	Units []Unit `json:"units"`
}

// Plan is the ordered stage list computed from a catalog.
type Plan struct {
	// Stages are executed in order; units within a stage keep declaration order.
	Stages []Stage `json:"stages"`

	// Graph is the underlying dependency graph.
	Graph *ExecutionGraph `json:"graph"`

	dot string
}

// Units returns every unit in execution order.
func (p *Plan) Units() []Unit {
	var units []Unit
	for _, stage := range p.Stages {
		units = append(units, stage.Units...)
	}
	return units
}

// Len returns the number of planned units.
func (p *Plan) Len() int {
	n := 0
	for _, stage := range p.Stages {
		n += len(stage.Units)
	}
	return n
}

// ToDOT returns the Graphviz rendering of the plan.
func (p *Plan) ToDOT() string {
	return p.dot
}

// Planner turns a catalog into ordered stages.
type Planner struct {
	logger zerolog.Logger
}

// NewPlanner creates a new planner.
func NewPlanner(logger zerolog.Logger) *Planner {
	return &Planner{logger: logger}
}

// Plan topologically sorts the catalog into stages. A cycle is a configuration
// error naming every unit on it, returned before anything is installed.
func (p *Planner) Plan(catalog *Catalog) (*Plan, error) {
	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(catalog)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Stages: make([]Stage, 0, graph.Depth),
		Graph:  graph,
		dot:    builder.ToDOT(),
	}
	for i, ids := range builder.GetLevels() {
		stage := Stage{Index: i, Units: make([]Unit, 0, len(ids))}
		for _, id := range ids {
			unit, _ := catalog.Lookup(id)
			stage.Units = append(stage.Units, unit)
		}
		plan.Stages = append(plan.Stages, stage)
	}

	p.logger.Debug().
		Int("units", plan.Len()).
		Int("stages", len(plan.Stages)).
		Msg("Plan computed")

	return plan, nil
}
