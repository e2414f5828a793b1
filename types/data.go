package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeData holds the parameters of a node. The concrete type is chosen by the node kind.
type NodeData interface {
	Kind() NodeKind
}

type PromptData struct {
	Value string `json:"value"`
}

type TextToVideoData struct {
	Model    string `json:"model"`
	Duration int    `json:"duration"`
}

type ImageToVideoData struct {
	Model          string  `json:"model"`
	MotionStrength float64 `json:"motionStrength"`
	ImageURL       string  `json:"imageUrl"`
}

type UpscaleData struct {
	Scale int `json:"scale"`
}

type MusicData struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

// MergeData is empty; merge nodes are configured by their ports only.
type MergeData struct{}

type LipSyncData struct {
	Model string `json:"model,omitempty"`
}

type PreviewData struct {
	VideoURL     string `json:"videoUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// RawData keeps the parameters of node kinds the engine does not know about.
type RawData map[string]any

func (PromptData) Kind() NodeKind       { return KindPrompt }
func (TextToVideoData) Kind() NodeKind  { return KindTextToVideo }
func (ImageToVideoData) Kind() NodeKind { return KindImageToVideo }
func (UpscaleData) Kind() NodeKind      { return KindUpscale }
func (MusicData) Kind() NodeKind        { return KindMusic }
func (MergeData) Kind() NodeKind        { return KindMerge }
func (LipSyncData) Kind() NodeKind      { return KindLipSync }
func (PreviewData) Kind() NodeKind      { return KindPreview }
func (RawData) Kind() NodeKind          { return "" }

// DecodeNodeData decodes raw JSON parameters into the typed data for kind.
// Empty or null input yields nil data.
func DecodeNodeData(kind NodeKind, raw []byte) (NodeData, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch kind {
	case KindPrompt:
		return decodeInto[PromptData](kind, raw)
	case KindTextToVideo:
		return decodeInto[TextToVideoData](kind, raw)
	case KindImageToVideo:
		return decodeInto[ImageToVideoData](kind, raw)
	case KindUpscale:
		return decodeInto[UpscaleData](kind, raw)
	case KindMusic:
		return decodeInto[MusicData](kind, raw)
	case KindMerge:
		return decodeInto[MergeData](kind, raw)
	case KindLipSync:
		return decodeInto[LipSyncData](kind, raw)
	case KindPreview:
		return decodeInto[PreviewData](kind, raw)
	default:
		var data RawData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("invalid data for kind %q: %w", kind, err)
		}
		return data, nil
	}
}

func decodeInto[T NodeData](kind NodeKind, raw []byte) (NodeData, error) {
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid data for kind %q: %w", kind, err)
	}
	return data, nil
}

func cloneData(d NodeData) NodeData {
	raw, ok := d.(RawData)
	if !ok || raw == nil {
		return d
	}
	out := make(RawData, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
