package port

import "context"

type FrameExtractionResult struct {
	FramePaths    []string
	FrameCount    int
	VideoDuration float64
}

// FrameExtractor pulls still frames out of a video file. A video with no
// extractable frames yields a zero-count result, not an error; the caller
// owns that terminal decision.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath string, outputDir string) (*FrameExtractionResult, error)
}
