package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/songzhibin97/mediaflow/types"
)

// DefaultPort is the input key used for edges without a source handle.
const DefaultPort = "default"

const defaultUpscale = 2

// Executor runs a single node against its resolved inputs.
type Executor struct {
	provider Provider
}

// NewExecutor creates an Executor that dispatches external calls to provider.
func NewExecutor(provider Provider) (*Executor, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	return &Executor{provider: provider}, nil
}

// Execute performs the node's effect and returns its output.
// Failures are returned as *NodeExecutionError. Unknown kinds pass their inputs through.
func (x *Executor) Execute(ctx context.Context, node types.Node, inputs map[string]any) (any, error) {
	out, err := x.dispatch(ctx, node, inputs)
	if err != nil {
		return nil, &NodeExecutionError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}
	return out, nil
}

func (x *Executor) dispatch(ctx context.Context, node types.Node, inputs map[string]any) (any, error) {
	switch node.Kind {
	case types.KindPrompt:
		data, _ := node.Data.(types.PromptData)
		return types.PromptOutput{Prompt: data.Value}, nil

	case types.KindTextToVideo:
		data, _ := node.Data.(types.TextToVideoData)
		prompt, ok := promptInput(inputs, "prompt", DefaultPort)
		if !ok {
			return nil, fmt.Errorf("%w: prompt", ErrMissingInput)
		}
		return x.provider.TextToVideo(ctx, TextToVideoRequest{
			Prompt:   prompt,
			Model:    data.Model,
			Duration: data.Duration,
		})

	case types.KindImageToVideo:
		data, _ := node.Data.(types.ImageToVideoData)
		imageURL := data.ImageURL
		if imageURL == "" {
			if s, ok := inputs["image"].(string); ok {
				imageURL = s
			}
		}
		if imageURL == "" {
			return nil, fmt.Errorf("%w: image", ErrMissingInput)
		}
		prompt, _ := promptInput(inputs, "prompt", DefaultPort)
		return x.provider.ImageToVideo(ctx, ImageToVideoRequest{
			ImageURL:       imageURL,
			Prompt:         prompt,
			Model:          data.Model,
			MotionStrength: data.MotionStrength,
		})

	case types.KindUpscale:
		data, _ := node.Data.(types.UpscaleData)
		video, ok := videoInput(inputs, "video", DefaultPort)
		if !ok {
			return nil, fmt.Errorf("%w: video", ErrMissingInput)
		}
		scale := data.Scale
		if scale <= 0 {
			scale = defaultUpscale
		}
		return x.provider.Upscale(ctx, UpscaleRequest{VideoURL: video.VideoURL, Scale: scale})

	case types.KindMusic:
		data, _ := node.Data.(types.MusicData)
		prompt := data.Prompt
		if prompt == "" {
			prompt, _ = promptInput(inputs, "prompt", DefaultPort)
		}
		if prompt == "" {
			return nil, fmt.Errorf("%w: prompt", ErrMissingInput)
		}
		return x.provider.Music(ctx, MusicRequest{Prompt: prompt, Duration: data.Duration})

	case types.KindMerge:
		videos := videoPorts(inputs)
		if len(videos) == 0 {
			return nil, fmt.Errorf("%w: video", ErrMissingInput)
		}
		req := MergeRequest{VideoURLs: videos}
		if audio, ok := audioInput(inputs, "audio"); ok {
			req.AudioURL = audio.AudioURL
		}
		return x.provider.Merge(ctx, req)

	case types.KindLipSync:
		data, _ := node.Data.(types.LipSyncData)
		video, ok := videoInput(inputs, "video", DefaultPort)
		if !ok {
			return nil, fmt.Errorf("%w: video", ErrMissingInput)
		}
		audio, ok := audioInput(inputs, "audio")
		if !ok {
			return nil, fmt.Errorf("%w: audio", ErrMissingInput)
		}
		return x.provider.LipSync(ctx, LipSyncRequest{VideoURL: video.VideoURL, AudioURL: audio.AudioURL, Model: data.Model})

	case types.KindPreview:
		if v, ok := inputs["video"]; ok {
			return v, nil
		}
		if v, ok := inputs[DefaultPort]; ok {
			return v, nil
		}
		if data, ok := node.Data.(types.PreviewData); ok && data.VideoURL != "" {
			return types.VideoOutput{VideoURL: data.VideoURL, ThumbnailURL: data.ThumbnailURL}, nil
		}
		return nil, nil

	default:
		out := make(map[string]any, len(inputs))
		for k, v := range inputs {
			out[k] = v
		}
		return out, nil
	}
}

// promptInput returns the first prompt found on ports.
func promptInput(inputs map[string]any, ports ...string) (string, bool) {
	for _, p := range ports {
		switch v := inputs[p].(type) {
		case types.PromptOutput:
			return v.Prompt, true
		case *types.PromptOutput:
			if v != nil {
				return v.Prompt, true
			}
		case string:
			return v, true
		case map[string]any:
			if s, ok := v["prompt"].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// videoInput returns the first video found on ports.
func videoInput(inputs map[string]any, ports ...string) (types.VideoOutput, bool) {
	for _, p := range ports {
		if v, ok := asVideo(inputs[p]); ok {
			return v, true
		}
	}
	return types.VideoOutput{}, false
}

func asVideo(v any) (types.VideoOutput, bool) {
	switch v := v.(type) {
	case types.VideoOutput:
		return v, v.VideoURL != ""
	case *types.VideoOutput:
		if v != nil {
			return *v, v.VideoURL != ""
		}
	case string:
		return types.VideoOutput{VideoURL: v}, v != ""
	case map[string]any:
		url, _ := v["videoUrl"].(string)
		thumb, _ := v["thumbnailUrl"].(string)
		return types.VideoOutput{VideoURL: url, ThumbnailURL: thumb}, url != ""
	}
	return types.VideoOutput{}, false
}

func audioInput(inputs map[string]any, ports ...string) (types.AudioOutput, bool) {
	for _, p := range ports {
		switch v := inputs[p].(type) {
		case types.AudioOutput:
			return v, v.AudioURL != ""
		case *types.AudioOutput:
			if v != nil {
				return *v, v.AudioURL != ""
			}
		case string:
			return types.AudioOutput{AudioURL: v}, v != ""
		case map[string]any:
			url, _ := v["audioUrl"].(string)
			return types.AudioOutput{AudioURL: url}, url != ""
		}
	}
	return types.AudioOutput{}, false
}

// videoPorts collects merge inputs from numbered video1..videoN ports in numeric order.
// The plain video and default ports are used only when no numbered port is connected.
func videoPorts(inputs map[string]any) []string {
	type numbered struct {
		n   int
		url string
	}
	var nums []numbered
	for port, v := range inputs {
		suffix := strings.TrimPrefix(port, "video")
		if suffix == port || suffix == "" {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if video, ok := asVideo(v); ok {
			nums = append(nums, numbered{n: n, url: video.VideoURL})
		}
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i].n < nums[j].n })

	urls := make([]string, 0, len(nums)+2)
	for _, v := range nums {
		urls = append(urls, v.url)
	}
	if len(urls) > 0 {
		return urls
	}
	for _, p := range []string{"video", DefaultPort} {
		if video, ok := asVideo(inputs[p]); ok {
			urls = append(urls, video.VideoURL)
		}
	}
	return urls
}
