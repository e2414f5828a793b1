// Package templates holds the built-in catalog of pre-built workflow graphs.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/songzhibin97/mediaflow/graph"
	"github.com/songzhibin97/mediaflow/rules"
	"github.com/songzhibin97/mediaflow/types"
)

//go:embed catalog.hcl
var catalogSource []byte

// Template is a named, pre-built workflow graph.
type Template struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Icon        string       `json:"icon"`
	Category    string       `json:"category"`
	Nodes       []types.Node `json:"nodes"`
	Edges       []types.Edge `json:"edges"`
}

// Graph returns the template as a workflow graph.
func (t Template) Graph() types.WorkflowGraph {
	return types.WorkflowGraph{Nodes: t.Nodes, Edges: t.Edges}
}

func (t Template) clone() Template {
	g := t.Graph().Clone()
	t.Nodes, t.Edges = g.Nodes, g.Edges
	return t
}

// env is the variable set a Filter expression sees.
func (t Template) env() map[string]interface{} {
	kinds := make([]string, 0, len(t.Nodes))
	seen := make(map[types.NodeKind]bool)
	for _, n := range t.Nodes {
		if !seen[n.Kind] {
			seen[n.Kind] = true
			kinds = append(kinds, string(n.Kind))
		}
	}
	return map[string]interface{}{
		"id":          t.ID,
		"name":        t.Name,
		"category":    t.Category,
		"description": t.Description,
		"nodeCount":   len(t.Nodes),
		"kinds":       kinds,
	}
}

type catalogFile struct {
	Templates []*templateBlock `hcl:"template,block"`
}

type templateBlock struct {
	ID          string       `hcl:"id,label"`
	Name        string       `hcl:"name"`
	Description string       `hcl:"description,optional"`
	Icon        string       `hcl:"icon,optional"`
	Category    string       `hcl:"category"`
	Nodes       []*nodeBlock `hcl:"node,block"`
	Edges       []*edgeBlock `hcl:"edge,block"`
}

type nodeBlock struct {
	ID   string    `hcl:"id,label"`
	Type string    `hcl:"type"`
	X    float64   `hcl:"x,optional"`
	Y    float64   `hcl:"y,optional"`
	Data cty.Value `hcl:"data,optional"`
}

type edgeBlock struct {
	ID           string `hcl:"id,label"`
	Source       string `hcl:"source"`
	Target       string `hcl:"target"`
	SourceHandle string `hcl:"source_handle,optional"`
	TargetHandle string `hcl:"target_handle,optional"`
}

// Registry is an immutable, indexed template catalog. Safe for concurrent use.
type Registry struct {
	templates []Template
	index     map[string]int
	evaluator *rules.ExprEvaluator
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the process-wide registry built from the embedded catalog.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = NewRegistry()
	})
	return defaultRegistry, defaultErr
}

// NewRegistry loads the embedded catalog.
func NewRegistry() (*Registry, error) {
	return Parse("catalog.hcl", catalogSource)
}

// Parse builds a registry from HCL source. Every template must be a valid, acyclic graph.
func Parse(filename string, src []byte) (*Registry, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse template catalog %s: %w", filename, diags)
	}

	var root catalogFile
	if diags = gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode template catalog %s: %w", filename, diags)
	}

	r := &Registry{
		templates: make([]Template, 0, len(root.Templates)),
		index:     make(map[string]int, len(root.Templates)),
		evaluator: rules.NewExprEvaluator(),
	}
	for _, block := range root.Templates {
		if _, dup := r.index[block.ID]; dup {
			return nil, fmt.Errorf("template %q: declared more than once", block.ID)
		}
		t, err := translate(block)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", block.ID, err)
		}
		g := t.Graph()
		if err := graph.Validate(g); err != nil {
			return nil, fmt.Errorf("template %q: %w", block.ID, err)
		}
		if _, err := graph.Order(g); err != nil {
			return nil, fmt.Errorf("template %q: %w", block.ID, err)
		}
		r.index[t.ID] = len(r.templates)
		r.templates = append(r.templates, t)
	}
	return r, nil
}

func translate(b *templateBlock) (Template, error) {
	t := Template{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Icon:        b.Icon,
		Category:    b.Category,
		Nodes:       make([]types.Node, 0, len(b.Nodes)),
		Edges:       make([]types.Edge, 0, len(b.Edges)),
	}
	for _, nb := range b.Nodes {
		kind := types.NodeKind(nb.Type)
		data, err := nodeData(kind, nb.Data)
		if err != nil {
			return Template{}, fmt.Errorf("node %q: %w", nb.ID, err)
		}
		t.Nodes = append(t.Nodes, types.Node{
			ID:       nb.ID,
			Kind:     kind,
			Position: types.Position{X: nb.X, Y: nb.Y},
			Data:     data,
		})
	}
	for _, eb := range b.Edges {
		t.Edges = append(t.Edges, types.Edge{
			ID:           eb.ID,
			Source:       eb.Source,
			Target:       eb.Target,
			SourceHandle: eb.SourceHandle,
			TargetHandle: eb.TargetHandle,
		})
	}
	return t, nil
}

// nodeData converts an HCL object through its JSON form into the typed data for kind.
func nodeData(kind types.NodeKind, v cty.Value) (types.NodeData, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, errors.New("data must be a literal value")
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, err
	}
	return types.DecodeNodeData(kind, raw)
}

// ListTemplates returns copies of every template in catalog order, or only
// those in category when it is non-empty.
func (r *Registry) ListTemplates(category string) []Template {
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		if category == "" || t.Category == category {
			out = append(out, t.clone())
		}
	}
	return out
}

// GetTemplate returns a copy of the template with the given id.
func (r *Registry) GetTemplate(id string) (Template, bool) {
	i, ok := r.index[id]
	if !ok {
		return Template{}, false
	}
	return r.templates[i].clone(), true
}

// Categories lists the distinct categories, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range r.templates {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Filter returns copies of the templates for which expression holds. The
// expression sees id, name, category, description, nodeCount and kinds.
func (r *Registry) Filter(expression string) ([]Template, error) {
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		ok, err := r.evaluator.Evaluate(expression, t.env())
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", expression, err)
		}
		if ok {
			out = append(out, t.clone())
		}
	}
	return out, nil
}
