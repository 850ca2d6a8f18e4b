package infra

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

type runner struct{}

func NewRunner() ports.Runner {
	return &runner{}
}

func (runner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s failed: %w\nstderr: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}

	return stdout.String(), nil
}
