package types

import (
	"encoding/json"
	"fmt"
)

// NodeKind selects which behavior a node executes.
type NodeKind string

// Known node kinds.
const (
	KindPrompt       NodeKind = "prompt"
	KindTextToVideo  NodeKind = "textToVideo"
	KindImageToVideo NodeKind = "imageToVideo"
	KindUpscale      NodeKind = "upscale"
	KindMusic        NodeKind = "music"
	KindMerge        NodeKind = "merge"
	KindLipSync      NodeKind = "lipSync"
	KindPreview      NodeKind = "preview"
)

// Known reports whether the engine has typed behavior for k.
func (k NodeKind) Known() bool {
	switch k {
	case KindPrompt, KindTextToVideo, KindImageToVideo, KindUpscale,
		KindMusic, KindMerge, KindLipSync, KindPreview:
		return true
	}
	return false
}

// Position is the editor placement of a node. The engine carries it but never reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node represents one step in a workflow graph.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data,omitempty"`
}

// UnmarshalJSON decodes Data according to the node's kind.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Kind     NodeKind        `json:"type"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodeNodeData(raw.Kind, raw.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	*n = Node{ID: raw.ID, Kind: raw.Kind, Position: raw.Position, Data: data}
	return nil
}

// Edge is a directed dependency from one node's output port to another node's input port.
// Empty handles address the default port.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// WorkflowGraph is the full description of a workflow.
type WorkflowGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with the given id.
func (g WorkflowGraph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Clone returns a copy that shares no mutable state with g.
func (g WorkflowGraph) Clone() WorkflowGraph {
	out := WorkflowGraph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		n.Data = cloneData(n.Data)
		out.Nodes[i] = n
	}
	copy(out.Edges, g.Edges)
	return out
}
