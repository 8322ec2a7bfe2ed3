package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pipeboard/automation/pkg/graph"
)

// Template is a named starter graph for new workflows
type Template struct {
	Name        string
	Description string
	Graph       graph.Graph
}

// TemplateCatalog holds the available workflow templates
type TemplateCatalog struct {
	templates map[string]Template
}

// Get returns a template by name
func (c *TemplateCatalog) Get(name string) (Template, error) {
	tpl, ok := c.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown workflow template %q", name)
	}
	return tpl, nil
}

// Names lists the available template names
func (c *TemplateCatalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	return names
}

type templateFile struct {
	Templates []struct {
		Name        string       `yaml:"name"`
		Description string       `yaml:"description"`
		Nodes       []yamlNode   `yaml:"nodes"`
		Connections []yamlEdge   `yaml:"connections"`
	} `yaml:"templates"`
}

type yamlNode struct {
	ID       string                 `yaml:"id"`
	Type     string                 `yaml:"type"`
	Label    string                 `yaml:"label"`
	Config   map[string]interface{} `yaml:"config"`
	Position []float64              `yaml:"position"`
}

type yamlEdge struct {
	ID           string `yaml:"id"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"sourceHandle"`
}

// ParseTemplates decodes a YAML template catalog
func ParseTemplates(data []byte) (*TemplateCatalog, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid template catalog: %w", err)
	}

	catalog := &TemplateCatalog{templates: make(map[string]Template)}
	for _, t := range file.Templates {
		g := graph.Graph{Viewport: graph.Viewport{Zoom: 1}}
		for _, n := range t.Nodes {
			node := graph.Node{
				ID:   n.ID,
				Type: n.Type,
				Data: graph.NodeData{Label: n.Label, Config: n.Config},
			}
			if len(n.Position) == 2 {
				node.Position = graph.Position{X: n.Position[0], Y: n.Position[1]}
			}
			g.Nodes = append(g.Nodes, node)
		}
		for _, e := range t.Connections {
			g.Connections = append(g.Connections, graph.Connection{
				ID:           e.ID,
				Source:       e.Source,
				Target:       e.Target,
				SourceHandle: e.SourceHandle,
			})
		}

		if _, errs := graph.Validate(g); len(errs) > 0 {
			return nil, fmt.Errorf("template %q has an invalid graph: %v", t.Name, errs[0])
		}

		catalog.templates[t.Name] = Template{
			Name:        t.Name,
			Description: t.Description,
			Graph:       g,
		}
	}

	return catalog, nil
}

// DefaultTemplates returns the built-in catalog
func DefaultTemplates() *TemplateCatalog {
	catalog, err := ParseTemplates([]byte(builtinTemplates))
	if err != nil {
		// The built-in catalog is covered by tests; failing here means a
		// broken build, not a runtime condition.
		panic(err)
	}
	return catalog
}

const builtinTemplates = `
templates:
  - name: welcome-lead
    description: Greet a new website lead and qualify it after a pause
    nodes:
      - id: trigger-1
        type: trigger
        label: New lead
        position: [80, 200]
        config:
          triggerType: new_lead
          source: website
      - id: action-1
        type: action
        label: Send welcome message
        position: [340, 200]
        config:
          actionType: send_message
          channel: whatsapp
          message: "Hi {{client.name}}, thanks for reaching out!"
      - id: delay-1
        type: delay
        label: Wait five minutes
        position: [600, 200]
        config:
          duration: 5
          unit: minutes
      - id: action-2
        type: action
        label: Move to qualified
        position: [860, 200]
        config:
          actionType: move_stage
          targetStage: Qualified
    connections:
      - id: e1
        source: trigger-1
        target: action-1
      - id: e2
        source: action-1
        target: delay-1
      - id: e3
        source: delay-1
        target: action-2

  - name: inbound-triage
    description: Classify an inbound message and route it to a sector
    nodes:
      - id: trigger-1
        type: trigger
        label: Inbound message
        position: [80, 200]
        config:
          triggerType: message_received
          channel: whatsapp
      - id: ai-1
        type: ai-step
        label: Classify intent
        position: [340, 200]
        config:
          actionType: text_classification
          prompt: "Classify the customer message"
          categories: [support, sales, billing]
          categoryMapping:
            support:
              action: move_sector
              targetSector: Support
            sales:
              action: move_sector
              targetSector: Sales
            billing:
              action: move_sector
              targetSector: Billing
      - id: cond-1
        type: condition
        label: Is sales?
        position: [600, 200]
        config:
          field: classification.category
          operator: equals
          value: sales
      - id: action-1
        type: action
        label: Notify sales rep
        position: [860, 120]
        config:
          actionType: send_message
          channel: email
          message: "New sales inquiry from {{client.name}}: {{message.content}}"
    connections:
      - id: e1
        source: trigger-1
        target: ai-1
      - id: e2
        source: ai-1
        target: cond-1
      - id: e3
        source: cond-1
        target: action-1
        sourceHandle: "true"
`
