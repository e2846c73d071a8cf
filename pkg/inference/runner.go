package inference

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fishdeas/fishdeas/pkg/observability"
)

// Runner invokes the detection script as a subprocess. Images travel
// through temp files because the script's CV stack reads and writes
// paths, not pipes.
type Runner struct {
	pythonBin  string
	scriptPath string
	workDir    string
	timeout    time.Duration
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Config for the runner
type Config struct {
	PythonBin  string
	ScriptPath string
	WorkDir    string
	Timeout    time.Duration
}

// NewRunner creates a runner; metrics may be nil
func NewRunner(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Runner {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Runner{
		pythonBin:  cfg.PythonBin,
		scriptPath: cfg.ScriptPath,
		workDir:    workDir,
		timeout:    cfg.Timeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// Available reports whether the interpreter and script exist. Checked
// once at startup so a misconfigured deployment fails loudly instead of
// on the first upload.
func (r *Runner) Available() error {
	if _, err := exec.LookPath(r.pythonBin); err != nil {
		return fmt.Errorf("python interpreter not found: %w", err)
	}
	if _, err := os.Stat(r.scriptPath); err != nil {
		return fmt.Errorf("detection script not found: %w", err)
	}
	return nil
}

// Process runs the model over the image and returns the annotated
// output. fileName is used for the temp files so failures are traceable
// to the upload that caused them.
func (r *Runner) Process(ctx context.Context, image []byte, model, fileName string) ([]byte, error) {
	start := time.Now()
	out, err := r.process(ctx, image, model, fileName)
	r.record(model, time.Since(start), err)
	return out, err
}

func (r *Runner) process(ctx context.Context, image []byte, model, fileName string) ([]byte, error) {
	inputPath := filepath.Join(r.workDir, fileName)
	outputPath := filepath.Join(r.workDir, "output-"+fileName)

	if err := os.WriteFile(inputPath, image, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write input image: %w", err)
	}
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.pythonBin, r.scriptPath, inputPath, model, outputPath)
	// Killing the interpreter does not reap children it spawned; they
	// inherit the output pipes and would keep CombinedOutput blocked.
	// WaitDelay abandons the pipe wait shortly after the kill.
	cmd.WaitDelay = time.Second
	combined, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"model":  model,
			"output": string(combined),
		}).Error("detection script failed")
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	processed, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read processed image: %w", err)
	}
	return processed, nil
}

func (r *Runner) record(model string, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		r.metrics.InferenceErrorsTotal.WithLabelValues(model).Inc()
	}
	r.metrics.InferenceTotal.WithLabelValues(model, status).Inc()
	r.metrics.InferenceDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}
