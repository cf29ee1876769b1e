package transcribe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

// CommandEngine runs the transcription pipeline as an external command,
// substituting {input} in the configured args with the audio file path.
// The pipeline's internals stay outside this repo; all the engine reports
// back is coarse stage progress.
type CommandEngine struct {
	command string
	args    []string
	log     *logger.Logger
}

func NewCommandEngine(command string, args []string, log *logger.Logger) *CommandEngine {
	return &CommandEngine{command: command, args: args, log: log}
}

func (e *CommandEngine) Transcribe(ctx context.Context, filePath string, progress func(percent int, stage, message string)) error {
	if e.command == "" {
		return fmt.Errorf("no transcription command configured")
	}

	args := make([]string, len(e.args))
	for i, a := range e.args {
		args[i] = strings.ReplaceAll(a, "{input}", filePath)
	}

	progress(10, "preparing", "Preparing audio")

	cmd := exec.CommandContext(ctx, e.command, args...)
	e.log.Infow("transcribe_exec", "command", e.command, "file", filePath)
	progress(30, "transcribing", "Transcribing audio")

	out, err := cmd.CombinedOutput()
	if err != nil {
		e.log.Errorw("transcribe_exec_failed", "file", filePath, "error", err, "output", string(out))
		return fmt.Errorf("transcription command failed: %w", err)
	}

	progress(90, "finalizing", "Finalizing transcript")
	return nil
}
