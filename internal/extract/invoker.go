package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joseph-ayodele/dpr-analyzer/internal/common"
)

// Artifact is the fully resolved output of one extraction run.
type Artifact struct {
	Text       string
	RawJSON    []byte
	Structured *StructuredDoc

	TxtFilename  string
	JSONFilename string
	ResolvedBy   ResolvedBy
}

// Config for the Invoker. Command is the extraction binary; Args are fixed
// leading arguments. The invoker appends <inputPath> <outputDir>.
type Config struct {
	Command string
	Args    []string
}

// Invoker drives the external extraction command against a stored document
// and resolves whatever it wrote into the job's output directory. It never
// touches the source document and never cleans up after itself; directory
// lifecycle belongs to the artifact store.
type Invoker struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewInvoker(cfg Config, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Command == "" {
		cfg.Command = "dpr-extract"
	}
	return &Invoker{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the process runner; used by tests to stub the tool.
func (e *Invoker) WithRunner(r Runner) *Invoker {
	e.runner = r
	return e
}

// Extract runs the external command with (inputPath, outputDir) and resolves
// the .txt/.json pair. The returned error is one of the pipeline kinds:
// ErrTimeout, ErrCancelled, ErrExtractionFailed, ErrArtifactResolution.
func (e *Invoker) Extract(ctx context.Context, inputPath, originalFilename, outputDir string) (Artifact, error) {
	start := time.Now()
	args := append(slices.Clone(e.cfg.Args), inputPath, outputDir)

	e.logger.Debug("extract.start",
		"cmd", e.cfg.Command,
		"input", inputPath,
		"output_dir", outputDir,
	)

	_, stderr, err := e.runner.Run(ctx, e.cfg.Command, args...)
	if err != nil {
		return Artifact{}, e.classifyRunError(ctx, err, stderr)
	}

	storedBase := baseName(inputPath)
	originalBase := baseName(originalFilename)

	res, err := resolveOutputs(outputDir, storedBase, originalBase)
	if err != nil {
		e.logger.Error("extract.resolve.failed",
			"stored_base", storedBase,
			"original_base", originalBase,
			"output_dir", outputDir,
			"error", err,
		)
		return Artifact{}, err
	}

	art, err := e.loadArtifacts(res)
	if err != nil {
		return Artifact{}, err
	}

	e.logger.Info("extract.ok",
		"resolved_by", res.By,
		"txt", art.TxtFilename,
		"json", art.JSONFilename,
		"text_bytes", len(art.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return art, nil
}

// loadArtifacts reads both files and validates the structured document.
// Partial results are not a success state: any unreadable or invalid member
// fails the pair as a whole.
func (e *Invoker) loadArtifacts(res resolution) (Artifact, error) {
	text, err := os.ReadFile(res.TxtPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: read text artifact: %v", common.ErrArtifactResolution, err)
	}
	if len(strings.TrimSpace(string(text))) == 0 {
		return Artifact{}, fmt.Errorf("%w: extractor produced empty text", common.ErrExtractionFailed)
	}

	raw, err := os.ReadFile(res.JSONPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: read structured artifact: %v", common.ErrArtifactResolution, err)
	}
	doc, err := DecodeStructured(raw)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", common.ErrArtifactResolution, err)
	}

	return Artifact{
		Text:         string(text),
		RawJSON:      raw,
		Structured:   doc,
		TxtFilename:  filepath.Base(res.TxtPath),
		JSONFilename: filepath.Base(res.JSONPath),
		ResolvedBy:   res.By,
	}, nil
}

// classifyRunError maps a command failure onto the pipeline error taxonomy.
// Context expiry wins over the exit status: a killed process reports an exit
// error too, but the timeout/cancel is the real cause.
func (e *Invoker) classifyRunError(ctx context.Context, err error, stderr []byte) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: extraction command: %v", common.ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: extraction command: %v", common.ErrCancelled, err)
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("%w: exit code %d: %s",
			common.ErrExtractionFailed, ee.ExitCode(), capStderr(string(stderr), 1<<10))
	}
	return fmt.Errorf("%w: %v", common.ErrExtractionFailed, err)
}

func baseName(path string) string {
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}
