package graph

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// ValidationError describes one static check failure in a graph. A
// slice of these is returned so the builder can show every problem at
// once instead of failing on the first.
type ValidationError struct {
	// NodeID is the offending node, when the error is node-scoped
	NodeID string `json:"node_id,omitempty"`

	// ConnectionID is the offending edge, when the error is edge-scoped
	ConnectionID string `json:"connection_id,omitempty"`

	// Field is the config field at fault, if any
	Field string `json:"field,omitempty"`

	// Message describes the problem
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	switch {
	case e.NodeID != "" && e.Field != "":
		return fmt.Sprintf("node %s: %s: %s", e.NodeID, e.Field, e.Message)
	case e.NodeID != "":
		return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
	case e.ConnectionID != "":
		return fmt.Sprintf("connection %s: %s", e.ConnectionID, e.Message)
	default:
		return e.Message
	}
}

func nodeErr(nodeID, field, format string, args ...interface{}) ValidationError {
	return ValidationError{NodeID: nodeID, Field: field, Message: fmt.Sprintf(format, args...)}
}

func connErr(connID, format string, args ...interface{}) ValidationError {
	return ValidationError{ConnectionID: connID, Message: fmt.Sprintf(format, args...)}
}

// Validate runs every static check on a graph. On success it returns a
// ValidGraph with lookups and typed configs resolved; otherwise it
// returns the full list of failures. Unreachable nodes are allowed and
// reported as warnings on the ValidGraph, not errors.
func Validate(g Graph) (*ValidGraph, []ValidationError) {
	var errs []ValidationError

	// Unique node ids
	nodes := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			errs = append(errs, nodeErr(n.ID, "", "node id must not be empty"))
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			errs = append(errs, nodeErr(n.ID, "", "duplicate node id"))
			continue
		}
		nodes[n.ID] = n
	}

	// Exactly one trigger node
	triggers := g.TriggerNodes()
	switch len(triggers) {
	case 0:
		errs = append(errs, ValidationError{Message: "graph must contain exactly one trigger node, found none"})
	case 1:
	default:
		errs = append(errs, ValidationError{Message: fmt.Sprintf("graph must contain exactly one trigger node, found %d", len(triggers))})
	}

	// Kind-specific config schemas
	configs := make(map[string]interface{}, len(g.Nodes))
	for _, n := range g.Nodes {
		cfg, err := DecodeConfig(n)
		if err != nil {
			errs = append(errs, nodeErr(n.ID, "config", "%v", err))
			continue
		}
		errs = append(errs, validateConfig(n, cfg)...)
		configs[n.ID] = cfg
	}

	// Edge integrity: endpoints exist, ports are legal for the source
	// kind, at most one edge per output port
	outgoing := make(map[string]map[string]Connection)
	for _, c := range g.Connections {
		src, srcOK := nodes[c.Source]
		if !srcOK {
			errs = append(errs, connErr(c.ID, "source node %q does not exist", c.Source))
		}
		if _, ok := nodes[c.Target]; !ok {
			errs = append(errs, connErr(c.ID, "target node %q does not exist", c.Target))
		}
		if !srcOK {
			continue
		}

		port := c.SourceHandle
		if !validPort(src.Type, port) {
			errs = append(errs, connErr(c.ID, "node %s (%s) has no output port %q", src.ID, src.Type, port))
			continue
		}

		if outgoing[c.Source] == nil {
			outgoing[c.Source] = make(map[string]Connection)
		}
		if _, dup := outgoing[c.Source][port]; dup {
			errs = append(errs, connErr(c.ID, "node %s already has an edge on port %q", c.Source, portName(port)))
			continue
		}
		outgoing[c.Source][port] = c
	}

	// Triggers have no input; nothing may point at them
	for _, c := range g.Connections {
		if t, ok := nodes[c.Target]; ok && t.Type == KindTrigger {
			errs = append(errs, connErr(c.ID, "trigger node %s cannot be an edge target", t.ID))
		}
	}

	// Acyclicity (Kahn). Revisiting a node within one run is a save-time
	// error, so any cycle rejects the graph.
	if cycle := findCycle(g, nodes); len(cycle) > 0 {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("graph contains a cycle through nodes %v", cycle)})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	vg := &ValidGraph{
		Graph:    g,
		Trigger:  triggers[0],
		nodes:    nodes,
		configs:  configs,
		outgoing: outgoing,
	}

	// Reachability: dead nodes are allowed but flagged
	reachable := reach(vg)
	for _, n := range g.Nodes {
		if n.Type == KindTrigger {
			continue
		}
		if !reachable[n.ID] {
			vg.Warnings = append(vg.Warnings, nodeErr(n.ID, "", "node is not reachable from the trigger"))
		}
	}

	return vg, nil
}

func validPort(kind, port string) bool {
	if kind == KindCondition {
		return port == PortTrue || port == PortFalse
	}
	return port == PortDefault
}

func portName(port string) string {
	if port == PortDefault {
		return "default"
	}
	return port
}

func validateConfig(n Node, cfg interface{}) []ValidationError {
	var errs []ValidationError

	switch c := cfg.(type) {
	case *TriggerConfig:
		switch c.TriggerType {
		case TriggerNewLead, TriggerStageChange, TriggerMessageReceived:
		case TriggerWebhook:
			if c.Path == "" {
				errs = append(errs, nodeErr(n.ID, "path", "webhook trigger requires a path"))
			}
		case TriggerTimeBased:
			if c.Schedule == "" {
				errs = append(errs, nodeErr(n.ID, "schedule", "time_based trigger requires a schedule"))
			} else if _, err := cron.ParseStandard(c.Schedule); err != nil {
				errs = append(errs, nodeErr(n.ID, "schedule", "invalid cron expression %q: %v", c.Schedule, err))
			}
		case "":
			errs = append(errs, nodeErr(n.ID, "triggerType", "trigger type is required"))
		default:
			errs = append(errs, nodeErr(n.ID, "triggerType", "unknown trigger type %q", c.TriggerType))
		}

	case *ConditionConfig:
		if !validOperators[c.Operator] {
			errs = append(errs, nodeErr(n.ID, "operator", "unknown operator %q", c.Operator))
			break
		}
		switch c.Operator {
		case OpOutsideBusinessHours:
			if c.BusinessHours == nil {
				errs = append(errs, nodeErr(n.ID, "businessHours", "outside_business_hours requires a businessHours window"))
			}
		case OpExpression:
			if c.Expression == "" {
				errs = append(errs, nodeErr(n.ID, "expression", "expression operator requires an expression"))
			}
		default:
			if c.Field == "" {
				errs = append(errs, nodeErr(n.ID, "field", "condition requires a field"))
			}
		}

	case *ActionConfig:
		if !validActionTypes[c.ActionType] {
			errs = append(errs, nodeErr(n.ID, "actionType", "unknown action type %q", c.ActionType))
			break
		}
		if n.Type == KindAIStep && !aiActionTypes[c.ActionType] {
			errs = append(errs, nodeErr(n.ID, "actionType", "ai-step nodes only support chatbot_response, text_classification and agent_response"))
			break
		}
		switch c.ActionType {
		case ActionSendMessage:
			if c.Channel == "" {
				errs = append(errs, nodeErr(n.ID, "channel", "send_message requires a channel"))
			}
			if c.Message == "" {
				errs = append(errs, nodeErr(n.ID, "message", "send_message requires a message"))
			}
		case ActionMoveStage:
			if c.TargetStage == "" {
				errs = append(errs, nodeErr(n.ID, "targetStage", "move_stage requires a target stage"))
			}
		case ActionMoveSector:
			if c.TargetSector == "" {
				errs = append(errs, nodeErr(n.ID, "targetSector", "move_sector requires a target sector"))
			}
		case ActionWebhook:
			if c.URL == "" {
				errs = append(errs, nodeErr(n.ID, "url", "webhook action requires a url"))
			}
		case ActionTextClassification:
			if len(c.Categories) == 0 {
				errs = append(errs, nodeErr(n.ID, "categories", "text_classification requires at least one category"))
			}
		}

	case *DelayConfig:
		if c.Duration <= 0 {
			errs = append(errs, nodeErr(n.ID, "duration", "delay duration must be greater than zero"))
		}
		if !validDelayUnits[c.Unit] {
			errs = append(errs, nodeErr(n.ID, "unit", "unknown delay unit %q", c.Unit))
		}
	}

	return errs
}

// findCycle runs Kahn's algorithm over the whole edge set and returns
// the ids left with nonzero in-degree, which together contain every cycle.
func findCycle(g Graph, nodes map[string]Node) []string {
	indegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string)
	for id := range nodes {
		indegree[id] = 0
	}
	for _, c := range g.Connections {
		if _, ok := nodes[c.Source]; !ok {
			continue
		}
		if _, ok := nodes[c.Target]; !ok {
			continue
		}
		adj[c.Source] = append(adj[c.Source], c.Target)
		indegree[c.Target]++
	}

	var queue []string
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited == len(nodes) {
		return nil
	}

	var cycle []string
	for id, d := range indegree {
		if d > 0 {
			cycle = append(cycle, id)
		}
	}
	return cycle
}

// reach walks forward from the trigger and marks every node seen
func reach(vg *ValidGraph) map[string]bool {
	seen := map[string]bool{vg.Trigger.ID: true}
	stack := []string{vg.Trigger.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range vg.outgoing[id] {
			if !seen[c.Target] {
				seen[c.Target] = true
				stack = append(stack, c.Target)
			}
		}
	}
	return seen
}
