package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want NodeData
	}{
		{"prompt", `{"id":"p","type":"prompt","data":{"value":"sunset"}}`, PromptData{Value: "sunset"}},
		{"textToVideo", `{"id":"v","type":"textToVideo","data":{"model":"kling-2.1","duration":5}}`, TextToVideoData{Model: "kling-2.1", Duration: 5}},
		{"imageToVideo", `{"id":"i","type":"imageToVideo","data":{"model":"gen3","motionStrength":0.5,"imageUrl":"https://cdn/i.jpg"}}`,
			ImageToVideoData{Model: "gen3", MotionStrength: 0.5, ImageURL: "https://cdn/i.jpg"}},
		{"upscale", `{"id":"u","type":"upscale","data":{"scale":4}}`, UpscaleData{Scale: 4}},
		{"music", `{"id":"m","type":"music","data":{"prompt":"synthwave","duration":10}}`, MusicData{Prompt: "synthwave", Duration: 10}},
		{"merge", `{"id":"g","type":"merge","data":{}}`, MergeData{}},
		{"lipSync", `{"id":"l","type":"lipSync","data":{"model":"sync-1.9"}}`, LipSyncData{Model: "sync-1.9"}},
		{"preview", `{"id":"o","type":"preview","data":{"videoUrl":"https://cdn/v.mp4"}}`, PreviewData{VideoURL: "https://cdn/v.mp4"}},
		{"no data", `{"id":"o","type":"preview"}`, nil},
		{"null data", `{"id":"o","type":"preview","data":null}`, nil},
		{"unknown kind", `{"id":"x","type":"colorGrade","data":{"lut":"teal"}}`, RawData{"lut": "teal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Node
			require.NoError(t, json.Unmarshal([]byte(tt.in), &n))
			assert.Equal(t, tt.want, n.Data)
			if tt.want != nil {
				assert.Equal(t, tt.want.Kind(), n.Data.Kind())
			}
		})
	}
}

func TestNode_UnmarshalJSON_BadData(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"id":"v","type":"textToVideo","data":{"duration":"five"}}`), &n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node v")
	assert.Contains(t, err.Error(), `invalid data for kind "textToVideo"`)
}

func TestNode_JSONRoundTrip(t *testing.T) {
	in := Node{ID: "p", Kind: KindPrompt, Position: Position{X: 10, Y: 20}, Data: PromptData{Value: "sunset"}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p","type":"prompt","position":{"x":10,"y":20},"data":{"value":"sunset"}}`, string(raw))

	var out Node
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestNodeKind_Known(t *testing.T) {
	for _, k := range []NodeKind{KindPrompt, KindTextToVideo, KindImageToVideo, KindUpscale, KindMusic, KindMerge, KindLipSync, KindPreview} {
		assert.True(t, k.Known(), k)
	}
	assert.False(t, NodeKind("colorGrade").Known())
	assert.False(t, NodeKind("").Known())
}

func TestWorkflowGraph_NodeAndClone(t *testing.T) {
	g := WorkflowGraph{
		Nodes: []Node{
			{ID: "a", Kind: KindPrompt, Data: PromptData{Value: "x"}},
			{ID: "b", Kind: "custom", Data: RawData{"k": "v"}},
		},
		Edges: []Edge{{ID: "e1", Source: "a", Target: "b"}},
	}

	n, ok := g.Node("b")
	require.True(t, ok)
	assert.Equal(t, NodeKind("custom"), n.Kind)
	_, ok = g.Node("z")
	assert.False(t, ok)

	c := g.Clone()
	assert.Equal(t, g, c)
	c.Nodes[0].ID = "changed"
	c.Edges[0].Target = "changed"
	c.Nodes[1].Data.(RawData)["k"] = "changed"

	assert.Equal(t, "a", g.Nodes[0].ID)
	assert.Equal(t, "b", g.Edges[0].Target)
	assert.Equal(t, "v", g.Nodes[1].Data.(RawData)["k"])
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusBlocked.Terminal())
}
