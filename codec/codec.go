// Package codec turns workflow graphs into compact, URL-safe share tokens and back.
//
// A token is the minified JSON form of a graph, compressed with DEFLATE and
// encoded as unpadded base64url, so it can be used directly as a query value:
//
//	/workflow?w=<token>
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"reflect"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"

	"github.com/songzhibin97/mediaflow/types"
)

// Version is the wire format version written by Encode.
const Version = 1

// MaxDecodedSize bounds the decompressed payload accepted by Decode.
const MaxDecodedSize = 1 << 20

var (
	// ErrDecode is wrapped by every Decode failure.
	ErrDecode = errors.New("malformed workflow token")
	// ErrUnsupportedVersion is returned for tokens of an unknown wire version.
	ErrUnsupportedVersion = errors.New("unsupported workflow token version")
	// ErrUnencodable is wrapped by Encode when the graph cannot survive a round trip.
	ErrUnencodable = errors.New("workflow cannot be encoded")
)

type wireWorkflow struct {
	Version int        `json:"v"`
	Nodes   []wireNode `json:"n"`
	Edges   []wireEdge `json:"e"`
	Name    string     `json:"name,omitempty"`
}

type wirePosition struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

type wireNode struct {
	ID       string          `json:"i"`
	Kind     types.NodeKind  `json:"k"`
	Position wirePosition    `json:"p"`
	Data     json.RawMessage `json:"d,omitempty"`
}

type wireEdge struct {
	ID           string `json:"i"`
	Source       string `json:"s"`
	Target       string `json:"t"`
	SourceHandle string `json:"sh,omitempty"`
	TargetHandle string `json:"th,omitempty"`
}

// Payload is a decoded share token.
type Payload struct {
	Name  string
	Nodes []types.Node
	Edges []types.Edge
}

// Graph returns the payload as a WorkflowGraph.
func (p *Payload) Graph() types.WorkflowGraph {
	return types.WorkflowGraph{Nodes: p.Nodes, Edges: p.Edges}
}

// Encode serializes a graph into a share token. Positions are rounded to integers.
// Non-finite positions, positions outside the int64 range and strings that are not
// valid UTF-8 are rejected with an error wrapping ErrUnencodable.
func Encode(nodes []types.Node, edges []types.Edge, name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: name is not valid UTF-8", ErrUnencodable)
	}
	wf := wireWorkflow{
		Version: Version,
		Nodes:   make([]wireNode, len(nodes)),
		Edges:   make([]wireEdge, len(edges)),
		Name:    name,
	}
	for i, n := range nodes {
		if !validUTF8(reflect.ValueOf(n)) {
			return "", fmt.Errorf("%w: node %q holds text that is not valid UTF-8", ErrUnencodable, n.ID)
		}
		x, errX := roundCoordinate(n.Position.X)
		y, errY := roundCoordinate(n.Position.Y)
		if err := errors.Join(errX, errY); err != nil {
			return "", fmt.Errorf("%w: node %s position: %v", ErrUnencodable, n.ID, err)
		}
		wn := wireNode{
			ID:       n.ID,
			Kind:     n.Kind,
			Position: wirePosition{X: x, Y: y},
		}
		if n.Data != nil {
			data, err := json.Marshal(n.Data)
			if err != nil {
				return "", fmt.Errorf("failed to marshal data of node %s: %w", n.ID, err)
			}
			wn.Data = data
		}
		wf.Nodes[i] = wn
	}
	for i, e := range edges {
		if !validUTF8(reflect.ValueOf(e)) {
			return "", fmt.Errorf("%w: edge %q holds text that is not valid UTF-8", ErrUnencodable, e.ID)
		}
		wf.Edges[i] = wireEdge(e)
	}

	raw, err := json.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow: %w", err)
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("failed to compress workflow: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to compress workflow: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// roundCoordinate rounds v to the integer carried on the wire.
func roundCoordinate(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%v is not finite", v)
	}
	r := math.Round(v)
	if r < math.MinInt64 || r >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is out of range", v)
	}
	return int64(r), nil
}

// validUTF8 reports whether every string reachable from v is valid UTF-8.
// encoding/json would otherwise replace invalid bytes with U+FFFD.
func validUTF8(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return utf8.ValidString(v.String())
	case reflect.Interface, reflect.Pointer:
		return v.IsNil() || validUTF8(v.Elem())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !validUTF8(v.Field(i)) {
				return false
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !validUTF8(v.Index(i)) {
				return false
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !validUTF8(iter.Key()) || !validUTF8(iter.Value()) {
				return false
			}
		}
	}
	return true
}

// Decode reconstructs a graph from a share token.
// Every failure wraps ErrDecode; Decode never panics.
func Decode(token string) (p *Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: %v", ErrDecode, r)
		}
	}()

	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrDecode)
	}
	compressed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(io.LimitReader(r, MaxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw) > MaxDecodedSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrDecode, MaxDecodedSize)
	}

	var wf wireWorkflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if wf.Version != Version {
		return nil, fmt.Errorf("%w: %w %d", ErrDecode, ErrUnsupportedVersion, wf.Version)
	}

	p = &Payload{
		Name:  wf.Name,
		Nodes: make([]types.Node, len(wf.Nodes)),
		Edges: make([]types.Edge, len(wf.Edges)),
	}
	for i, wn := range wf.Nodes {
		data, err := types.DecodeNodeData(wn.Kind, wn.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		p.Nodes[i] = types.Node{
			ID:       wn.ID,
			Kind:     wn.Kind,
			Position: types.Position{X: float64(wn.Position.X), Y: float64(wn.Position.Y)},
			Data:     data,
		}
	}
	for i, we := range wf.Edges {
		p.Edges[i] = types.Edge(we)
	}
	return p, nil
}

// LinkPath returns the editor path that loads token.
func LinkPath(token string) string {
	return "/workflow?w=" + url.QueryEscape(token)
}
