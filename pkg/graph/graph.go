// Package graph defines the node/edge representation of an automation
// workflow and its static validation.
//
// The JSON shape mirrors what the visual builder reads and writes
// (workflow_data = {nodes, connections, viewport}) and must stay
// compatible with it.
package graph

import "encoding/json"

// Node kinds
const (
	KindTrigger   = "trigger"
	KindCondition = "condition"
	KindAction    = "action"
	KindDelay     = "delay"
	KindAIStep    = "ai-step"
)

// Output port names. Condition nodes expose PortTrue and PortFalse;
// every other kind exposes the single default port (empty handle).
const (
	PortDefault = ""
	PortTrue    = "true"
	PortFalse   = "false"
)

// Graph is one workflow's node/edge set as persisted by the builder
type Graph struct {
	// Nodes in the graph
	Nodes []Node `json:"nodes"`

	// Connections are the directed edges between nodes
	Connections []Connection `json:"connections"`

	// Viewport is the builder's pan/zoom state, carried through untouched
	Viewport Viewport `json:"viewport"`
}

// Node is a single step in the graph
type Node struct {
	// ID is unique within the graph
	ID string `json:"id"`

	// Type is the node kind ("trigger", "condition", "action", "delay", "ai-step")
	Type string `json:"type"`

	// Position of the node on the builder canvas
	Position Position `json:"position"`

	// Data holds the human label and the kind-specific configuration
	Data NodeData `json:"data"`
}

// NodeData is the builder payload attached to a node
type NodeData struct {
	// Label is the human-readable name shown in the builder
	Label string `json:"label"`

	// Config is the kind-specific configuration bag. It is kept as a raw
	// map so unknown keys written by the builder survive a round trip;
	// DecodeConfig produces the typed form.
	Config map[string]interface{} `json:"config,omitempty"`
}

// Position is a canvas coordinate
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Connection is a directed edge from a source node's output port to a
// target node's input
type Connection struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Viewport is the builder's pan/zoom state
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Parse decodes a graph from its wire representation
func Parse(data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// Encode serializes a graph to its wire representation
func Encode(g Graph) ([]byte, error) {
	return json.Marshal(g)
}

// NodeByID returns the node with the given id, if present
func (g Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// TriggerNodes returns every node of kind trigger, in declaration order
func (g Graph) TriggerNodes() []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Type == KindTrigger {
			out = append(out, n)
		}
	}
	return out
}

// ValidGraph is a graph that passed validation, with id lookups and
// typed configs resolved. Edges are resolved by id lookup at walk time;
// nodes never hold references to each other.
type ValidGraph struct {
	// Graph is the underlying wire representation
	Graph Graph

	// Trigger is the single entry node
	Trigger Node

	// Warnings are non-fatal findings (e.g. unreachable nodes)
	Warnings []ValidationError

	nodes    map[string]Node
	configs  map[string]interface{}
	outgoing map[string]map[string]Connection
}

// Node returns the node with the given id
func (vg *ValidGraph) Node(id string) (Node, bool) {
	n, ok := vg.nodes[id]
	return n, ok
}

// Config returns the decoded, kind-specific config for a node. The
// concrete type is *TriggerConfig, *ConditionConfig, *ActionConfig or
// *DelayConfig depending on the node kind (ai-step shares *ActionConfig).
func (vg *ValidGraph) Config(nodeID string) interface{} {
	return vg.configs[nodeID]
}

// Outgoing returns the connection leaving nodeID on the named port, if any
func (vg *ValidGraph) Outgoing(nodeID, port string) (Connection, bool) {
	ports, ok := vg.outgoing[nodeID]
	if !ok {
		return Connection{}, false
	}
	c, ok := ports[port]
	return c, ok
}
