package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/mediaflow/types"
)

// spyProvider records the last request of every collaborator.
type spyProvider struct {
	t2v     TextToVideoRequest
	i2v     ImageToVideoRequest
	upscale UpscaleRequest
	music   MusicRequest
	merge   MergeRequest
	lipSync LipSyncRequest
	err     error
}

func (s *spyProvider) TextToVideo(ctx context.Context, req TextToVideoRequest) (types.VideoOutput, error) {
	s.t2v = req
	return types.VideoOutput{VideoURL: "t2v.mp4"}, s.err
}

func (s *spyProvider) ImageToVideo(ctx context.Context, req ImageToVideoRequest) (types.VideoOutput, error) {
	s.i2v = req
	return types.VideoOutput{VideoURL: "i2v.mp4"}, s.err
}

func (s *spyProvider) Upscale(ctx context.Context, req UpscaleRequest) (types.VideoOutput, error) {
	s.upscale = req
	return types.VideoOutput{VideoURL: "up.mp4"}, s.err
}

func (s *spyProvider) Music(ctx context.Context, req MusicRequest) (types.AudioOutput, error) {
	s.music = req
	return types.AudioOutput{AudioURL: "music.mp3"}, s.err
}

func (s *spyProvider) Merge(ctx context.Context, req MergeRequest) (types.VideoOutput, error) {
	s.merge = req
	return types.VideoOutput{VideoURL: "merged.mp4"}, s.err
}

func (s *spyProvider) LipSync(ctx context.Context, req LipSyncRequest) (types.VideoOutput, error) {
	s.lipSync = req
	return types.VideoOutput{VideoURL: "synced.mp4"}, s.err
}

func TestNewExecutor(t *testing.T) {
	_, err := NewExecutor(nil)
	assert.ErrorIs(t, err, ErrProviderRequired)
}

func TestExecutor_Dispatch(t *testing.T) {
	ctx := context.Background()
	spy := &spyProvider{}
	x, err := NewExecutor(spy)
	require.NoError(t, err)

	t.Run("Prompt", func(t *testing.T) {
		out, err := x.Execute(ctx, types.Node{ID: "p", Kind: types.KindPrompt, Data: types.PromptData{Value: "cat"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, types.PromptOutput{Prompt: "cat"}, out)
	})

	t.Run("TextToVideo", func(t *testing.T) {
		node := types.Node{ID: "v", Kind: types.KindTextToVideo, Data: types.TextToVideoData{Model: "wan-2.1", Duration: 5}}
		out, err := x.Execute(ctx, node, map[string]any{"prompt": types.PromptOutput{Prompt: "cat"}})
		require.NoError(t, err)
		assert.Equal(t, types.VideoOutput{VideoURL: "t2v.mp4"}, out)
		assert.Equal(t, TextToVideoRequest{Prompt: "cat", Model: "wan-2.1", Duration: 5}, spy.t2v)

		_, err = x.Execute(ctx, node, map[string]any{DefaultPort: map[string]any{"prompt": "dog"}})
		require.NoError(t, err)
		assert.Equal(t, "dog", spy.t2v.Prompt)

		_, err = x.Execute(ctx, node, nil)
		assert.ErrorIs(t, err, ErrMissingInput)
	})

	t.Run("ImageToVideo", func(t *testing.T) {
		node := types.Node{ID: "i", Kind: types.KindImageToVideo, Data: types.ImageToVideoData{Model: "kling", MotionStrength: 0.7, ImageURL: "still.png"}}
		_, err := x.Execute(ctx, node, map[string]any{"prompt": types.PromptOutput{Prompt: "pan left"}})
		require.NoError(t, err)
		assert.Equal(t, ImageToVideoRequest{ImageURL: "still.png", Prompt: "pan left", Model: "kling", MotionStrength: 0.7}, spy.i2v)

		_, err = x.Execute(ctx, types.Node{ID: "i", Kind: types.KindImageToVideo}, nil)
		assert.ErrorIs(t, err, ErrMissingInput)
	})

	t.Run("UpscaleDefaultsScale", func(t *testing.T) {
		_, err := x.Execute(ctx, types.Node{ID: "u", Kind: types.KindUpscale}, map[string]any{"video": types.VideoOutput{VideoURL: "in.mp4"}})
		require.NoError(t, err)
		assert.Equal(t, UpscaleRequest{VideoURL: "in.mp4", Scale: 2}, spy.upscale)
	})

	t.Run("MusicFromData", func(t *testing.T) {
		_, err := x.Execute(ctx, types.Node{ID: "m", Kind: types.KindMusic, Data: types.MusicData{Prompt: "lofi", Duration: 30}}, nil)
		require.NoError(t, err)
		assert.Equal(t, MusicRequest{Prompt: "lofi", Duration: 30}, spy.music)
	})

	t.Run("MergeNumberedPorts", func(t *testing.T) {
		inputs := map[string]any{
			"video2": types.VideoOutput{VideoURL: "b.mp4"},
			"video1": types.VideoOutput{VideoURL: "a.mp4"},
			"video":  types.VideoOutput{VideoURL: "a.mp4"},
			"audio":  types.AudioOutput{AudioURL: "m.mp3"},
		}
		out, err := x.Execute(ctx, types.Node{ID: "g", Kind: types.KindMerge, Data: types.MergeData{}}, inputs)
		require.NoError(t, err)
		assert.Equal(t, types.VideoOutput{VideoURL: "merged.mp4"}, out)
		assert.Equal(t, MergeRequest{VideoURLs: []string{"a.mp4", "b.mp4"}, AudioURL: "m.mp3"}, spy.merge)

		_, err = x.Execute(ctx, types.Node{ID: "g", Kind: types.KindMerge}, map[string]any{"audio": types.AudioOutput{AudioURL: "m.mp3"}})
		assert.ErrorIs(t, err, ErrMissingInput)
	})

	t.Run("LipSync", func(t *testing.T) {
		inputs := map[string]any{
			"video": types.VideoOutput{VideoURL: "face.mp4"},
			"audio": types.AudioOutput{AudioURL: "voice.mp3"},
		}
		_, err := x.Execute(ctx, types.Node{ID: "l", Kind: types.KindLipSync}, inputs)
		require.NoError(t, err)
		assert.Equal(t, LipSyncRequest{VideoURL: "face.mp4", AudioURL: "voice.mp3"}, spy.lipSync)

		delete(inputs, "audio")
		_, err = x.Execute(ctx, types.Node{ID: "l", Kind: types.KindLipSync}, inputs)
		assert.ErrorIs(t, err, ErrMissingInput)
	})

	t.Run("PreviewFallsBackToData", func(t *testing.T) {
		node := types.Node{ID: "o", Kind: types.KindPreview, Data: types.PreviewData{VideoURL: "saved.mp4", ThumbnailURL: "saved.jpg"}}
		out, err := x.Execute(ctx, node, nil)
		require.NoError(t, err)
		assert.Equal(t, types.VideoOutput{VideoURL: "saved.mp4", ThumbnailURL: "saved.jpg"}, out)

		out, err = x.Execute(ctx, node, map[string]any{"video": "live.mp4"})
		require.NoError(t, err)
		assert.Equal(t, "live.mp4", out)
	})
}

func TestExecutor_WrapsCollaboratorErrors(t *testing.T) {
	cause := errors.New("quota exceeded")
	x, err := NewExecutor(&spyProvider{err: cause})
	require.NoError(t, err)

	out, err := x.Execute(context.Background(), types.Node{ID: "m", Kind: types.KindMusic, Data: types.MusicData{Prompt: "lofi"}}, nil)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, cause)

	var nerr *NodeExecutionError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "m", nerr.NodeID)
	assert.Equal(t, types.KindMusic, nerr.Kind)
	assert.Equal(t, "node m (music): quota exceeded", nerr.Error())
}
