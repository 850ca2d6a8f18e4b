package ports

import "context"

// Runner executes external commands (ffmpeg, ffprobe).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}
