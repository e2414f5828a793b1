package workflow

import (
	"context"
	"fmt"

	"github.com/songzhibin97/mediaflow/types"
)

// TextToVideoRequest asks for a clip generated from a prompt.
type TextToVideoRequest struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	Duration int    `json:"duration"`
}

// ImageToVideoRequest asks for a still image to be animated.
type ImageToVideoRequest struct {
	ImageURL       string  `json:"imageUrl"`
	Prompt         string  `json:"prompt,omitempty"`
	Model          string  `json:"model"`
	MotionStrength float64 `json:"motionStrength"`
}

// UpscaleRequest asks for a video to be upscaled by Scale.
type UpscaleRequest struct {
	VideoURL string `json:"videoUrl"`
	Scale    int    `json:"scale"`
}

// MusicRequest asks for a music track of Duration seconds.
type MusicRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

// MergeRequest joins videos in order, optionally laying AudioURL over them.
type MergeRequest struct {
	VideoURLs []string `json:"videoUrls"`
	AudioURL  string   `json:"audioUrl,omitempty"`
}

// LipSyncRequest syncs the lips in a video to an audio track.
type LipSyncRequest struct {
	VideoURL string `json:"videoUrl"`
	AudioURL string `json:"audioUrl"`
	Model    string `json:"model,omitempty"`
}

// Provider is the set of external generation services the executor dispatches to.
// Each node kind besides prompt and preview makes exactly one call.
type Provider interface {
	TextToVideo(ctx context.Context, req TextToVideoRequest) (types.VideoOutput, error)
	ImageToVideo(ctx context.Context, req ImageToVideoRequest) (types.VideoOutput, error)
	Upscale(ctx context.Context, req UpscaleRequest) (types.VideoOutput, error)
	Music(ctx context.Context, req MusicRequest) (types.AudioOutput, error)
	Merge(ctx context.Context, req MergeRequest) (types.VideoOutput, error)
	LipSync(ctx context.Context, req LipSyncRequest) (types.VideoOutput, error)
}

// ProviderFuncs adapts plain functions to Provider. A nil function fails with ErrCollaboratorMissing.
type ProviderFuncs struct {
	TextToVideoFunc  func(ctx context.Context, req TextToVideoRequest) (types.VideoOutput, error)
	ImageToVideoFunc func(ctx context.Context, req ImageToVideoRequest) (types.VideoOutput, error)
	UpscaleFunc      func(ctx context.Context, req UpscaleRequest) (types.VideoOutput, error)
	MusicFunc        func(ctx context.Context, req MusicRequest) (types.AudioOutput, error)
	MergeFunc        func(ctx context.Context, req MergeRequest) (types.VideoOutput, error)
	LipSyncFunc      func(ctx context.Context, req LipSyncRequest) (types.VideoOutput, error)
}

var _ Provider = ProviderFuncs{}

func missing(kind types.NodeKind) error {
	return fmt.Errorf("%w: %s", ErrCollaboratorMissing, kind)
}

func (p ProviderFuncs) TextToVideo(ctx context.Context, req TextToVideoRequest) (types.VideoOutput, error) {
	if p.TextToVideoFunc == nil {
		return types.VideoOutput{}, missing(types.KindTextToVideo)
	}
	return p.TextToVideoFunc(ctx, req)
}

func (p ProviderFuncs) ImageToVideo(ctx context.Context, req ImageToVideoRequest) (types.VideoOutput, error) {
	if p.ImageToVideoFunc == nil {
		return types.VideoOutput{}, missing(types.KindImageToVideo)
	}
	return p.ImageToVideoFunc(ctx, req)
}

func (p ProviderFuncs) Upscale(ctx context.Context, req UpscaleRequest) (types.VideoOutput, error) {
	if p.UpscaleFunc == nil {
		return types.VideoOutput{}, missing(types.KindUpscale)
	}
	return p.UpscaleFunc(ctx, req)
}

func (p ProviderFuncs) Music(ctx context.Context, req MusicRequest) (types.AudioOutput, error) {
	if p.MusicFunc == nil {
		return types.AudioOutput{}, missing(types.KindMusic)
	}
	return p.MusicFunc(ctx, req)
}

func (p ProviderFuncs) Merge(ctx context.Context, req MergeRequest) (types.VideoOutput, error) {
	if p.MergeFunc == nil {
		return types.VideoOutput{}, missing(types.KindMerge)
	}
	return p.MergeFunc(ctx, req)
}

func (p ProviderFuncs) LipSync(ctx context.Context, req LipSyncRequest) (types.VideoOutput, error) {
	if p.LipSyncFunc == nil {
		return types.VideoOutput{}, missing(types.KindLipSync)
	}
	return p.LipSyncFunc(ctx, req)
}
