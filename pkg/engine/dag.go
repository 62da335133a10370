package engine

import (
	"fmt"
	"strings"
)

// ExecutionGraph is the layered dependency graph of a catalog.
type ExecutionGraph struct {
	// Nodes maps unit IDs to graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges lists every dependency edge, from dependency to dependent.
	Edges []GraphEdge `json:"edges"`

	// Roots lists units without dependencies, in declaration order.
	Roots []string `json:"roots"`

	// Depth is the number of stages.
	Depth int `json:"depth"`
}

// GraphNode is one unit in the execution graph.
type GraphNode struct {
	ID           string   `json:"id"`
	Level        int      `json:"level"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

// GraphEdge is a dependency edge.
type GraphEdge struct {
	From string         `json:"from"`
	To   string         `json:"to"`
	Type DependencyType `json:"type"`
}

// DAGBuilder builds a layered dependency graph from a catalog.
// Within each level, units keep catalog declaration order.
type DAGBuilder struct {
	catalog *Catalog

	// adjacencyList maps unit IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps unit IDs to their dependencies
	reverseAdjacencyList map[string][]string

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// levels maps execution level to unit IDs at that level
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// BuildGraph constructs the execution graph of a catalog.
// It detects cycles and computes stages.
func (b *DAGBuilder) BuildGraph(catalog *Catalog) (*ExecutionGraph, error) {
	if catalog == nil || catalog.Len() == 0 {
		return &ExecutionGraph{
			Nodes: make(map[string]*GraphNode),
			Edges: make([]GraphEdge, 0),
			Roots: make([]string, 0),
			Depth: 0,
		}, nil
	}

	b.initialize(catalog)

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

// initialize sets up the adjacency lists. The catalog has already checked
// that every dependency target exists.
func (b *DAGBuilder) initialize(catalog *Catalog) {
	b.catalog = catalog
	for _, unit := range catalog.units {
		b.adjacencyList[unit.ID] = make([]string, 0)
		b.reverseAdjacencyList[unit.ID] = make([]string, 0)
		b.inDegree[unit.ID] = 0
	}

	for _, unit := range catalog.units {
		seen := make(map[string]bool)
		for _, dep := range unit.Dependencies() {
			// A unit listed in both DependsOn and After is one edge.
			if seen[dep.TargetID] {
				continue
			}
			seen[dep.TargetID] = true

			// dependency must be finalized before unit can start
			b.adjacencyList[dep.TargetID] = append(b.adjacencyList[dep.TargetID], unit.ID)
			b.reverseAdjacencyList[unit.ID] = append(b.reverseAdjacencyList[unit.ID], dep.TargetID)
			b.inDegree[unit.ID]++
		}
	}
}

// detectCycles uses depth-first search to detect circular dependencies.
// Nodes are visited in declaration order so the reported cycle is stable.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, unit := range b.catalog.units {
		if visited[unit.ID] {
			continue
		}
		if cycle := b.detectCyclesUtil(unit.ID, visited, recStack, nil); cycle != nil {
			members := cycle[:len(cycle)-1]
			return NewConfigurationError(
				fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)),
				nil,
			).WithCode(ErrCodeCycle).WithDetail("units", members)
		}
	}

	return nil
}

// detectCyclesUtil performs DFS and returns the cycle path if one is found.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, id := range path {
				if id == dependent {
					cycle := append([]string(nil), path[i:]...)
					return append(cycle, dependent)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeLevels assigns stages using Kahn's algorithm, breaking ties by
// declaration order.
func (b *DAGBuilder) computeLevels() error {
	inDegreeCopy := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegreeCopy[id] = degree
	}

	currentLevel := make([]string, 0)
	for _, unit := range b.catalog.units {
		if inDegreeCopy[unit.ID] == 0 {
			currentLevel = append(currentLevel, unit.ID)
		}
	}

	if len(currentLevel) == 0 {
		return NewConfigurationError("no root units found - all units have dependencies", nil).
			WithCode(ErrCodeCycle)
	}

	processedCount := 0
	for len(currentLevel) > 0 {
		b.levels = append(b.levels, currentLevel)
		processedCount += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, nodeID := range currentLevel {
			for _, dependent := range b.adjacencyList[nodeID] {
				inDegreeCopy[dependent]--
				if inDegreeCopy[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}
		b.catalog.sortByIndex(nextLevel)

		currentLevel = nextLevel
	}

	if processedCount != b.catalog.Len() {
		return NewConfigurationError("failed to process all units - possible cycle", nil).
			WithCode(ErrCodeInternal)
	}

	return nil
}

// buildExecutionGraph creates the final ExecutionGraph structure.
func (b *DAGBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes: make(map[string]*GraphNode),
		Edges: make([]GraphEdge, 0),
		Roots: make([]string, 0),
		Depth: len(b.levels),
	}

	for level, unitIDs := range b.levels {
		for _, unitID := range unitIDs {
			graph.Nodes[unitID] = &GraphNode{
				ID:           unitID,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[unitID],
				Dependents:   b.adjacencyList[unitID],
			}
			if level == 0 {
				graph.Roots = append(graph.Roots, unitID)
			}
		}
	}

	for _, unit := range b.catalog.units {
		for _, dep := range unit.Dependencies() {
			graph.Edges = append(graph.Edges, GraphEdge{
				From: dep.TargetID,
				To:   unit.ID,
				Type: dep.Type,
			})
		}
	}

	return graph
}

// GetLevels returns the computed stages.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT generates a DOT format representation of the DAG for visualization.
// The output can be rendered with Graphviz tools.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Catalog {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, unitIDs := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_stage_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Stage %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, unitID := range unitIDs {
			unit, _ := b.catalog.Lookup(unitID)
			label := fmt.Sprintf("%s\\n%s", unit.ID, unit.Kind)
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				unitID, label, getKindColor(unit.Kind)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, unit := range b.catalog.units {
		for _, dep := range unit.Dependencies() {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n",
				dep.TargetID, unit.ID, getDependencyStyle(dep.Type)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

// getKindColor returns a color for visualizing source kinds.
func getKindColor(kind SourceKind) string {
	switch kind {
	case KindSystemPackage, KindCask, KindSnap:
		return "lightblue"
	case KindLanguagePackage:
		return "lightgreen"
	case KindBinaryDownload, KindScript:
		return "khaki"
	case KindGitClone:
		return "plum"
	case KindGeneratedFile:
		return "lightgray"
	default:
		return "white"
	}
}

// getDependencyStyle returns a DOT style string for dependency types.
func getDependencyStyle(depType DependencyType) string {
	switch depType {
	case DependencyOrder:
		return "style=dotted, color=gray"
	default:
		return "style=solid, color=black"
	}
}
