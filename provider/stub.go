package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/songzhibin97/mediaflow/types"
	"github.com/songzhibin97/mediaflow/workflow"
)

const stubHost = "https://stub.mediaflow.local"

// Stub is a deterministic Provider for demos and tests. Equal requests yield
// equal URLs. Failures and latency can be injected per node kind.
type Stub struct {
	mu       sync.Mutex
	failures map[types.NodeKind]error
	latency  time.Duration
	calls    map[types.NodeKind]int
}

var _ workflow.Provider = (*Stub)(nil)

// NewStub creates a Stub that always succeeds.
func NewStub() *Stub {
	return &Stub{
		failures: make(map[types.NodeKind]error),
		calls:    make(map[types.NodeKind]int),
	}
}

// FailWith makes every call for kind return err. A nil err clears the failure.
func (s *Stub) FailWith(kind types.NodeKind, err error) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, kind)
	} else {
		s.failures[kind] = err
	}
	return s
}

// WithLatency delays every call by d, or until ctx is done.
func (s *Stub) WithLatency(d time.Duration) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
	return s
}

// Calls reports how many times kind was invoked.
func (s *Stub) Calls(kind types.NodeKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

func (s *Stub) begin(ctx context.Context, kind types.NodeKind) error {
	s.mu.Lock()
	s.calls[kind]++
	err := s.failures[kind]
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// asset derives a stable URL from the request contents.
func asset(kind, ext string, req interface{}) string {
	raw, _ := json.Marshal(req)
	sum := sha1.Sum(append([]byte(kind+":"), raw...))
	return stubHost + "/" + kind + "/" + hex.EncodeToString(sum[:8]) + ext
}

func video(kind string, req interface{}) types.VideoOutput {
	return types.VideoOutput{
		VideoURL:     asset(kind, ".mp4", req),
		ThumbnailURL: asset(kind, ".jpg", req),
	}
}

func (s *Stub) TextToVideo(ctx context.Context, req workflow.TextToVideoRequest) (types.VideoOutput, error) {
	if err := s.begin(ctx, types.KindTextToVideo); err != nil {
		return types.VideoOutput{}, err
	}
	return video("text-to-video", req), nil
}

func (s *Stub) ImageToVideo(ctx context.Context, req workflow.ImageToVideoRequest) (types.VideoOutput, error) {
	if err := s.begin(ctx, types.KindImageToVideo); err != nil {
		return types.VideoOutput{}, err
	}
	return video("image-to-video", req), nil
}

func (s *Stub) Upscale(ctx context.Context, req workflow.UpscaleRequest) (types.VideoOutput, error) {
	if err := s.begin(ctx, types.KindUpscale); err != nil {
		return types.VideoOutput{}, err
	}
	return video("upscale", req), nil
}

func (s *Stub) Music(ctx context.Context, req workflow.MusicRequest) (types.AudioOutput, error) {
	if err := s.begin(ctx, types.KindMusic); err != nil {
		return types.AudioOutput{}, err
	}
	return types.AudioOutput{AudioURL: asset("music", ".mp3", req)}, nil
}

func (s *Stub) Merge(ctx context.Context, req workflow.MergeRequest) (types.VideoOutput, error) {
	if err := s.begin(ctx, types.KindMerge); err != nil {
		return types.VideoOutput{}, err
	}
	return video("merge", req), nil
}

func (s *Stub) LipSync(ctx context.Context, req workflow.LipSyncRequest) (types.VideoOutput, error) {
	if err := s.begin(ctx, types.KindLipSync); err != nil {
		return types.VideoOutput{}, err
	}
	return video("lip-sync", req), nil
}
