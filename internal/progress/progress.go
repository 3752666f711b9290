package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stage represents a preload stage
type Stage struct {
	Number      int
	Total       int
	Name        string
	Description string
}

// Preload stages
var (
	StageScan    = Stage{1, 4, "scan", "Scanning pattern code for sounds..."}
	StageResolve = Stage{2, 4, "resolve", "Classifying sounds and checking the cache..."}
	StageLoad    = Stage{3, 4, "load", "Downloading missing banks... (this may take a moment)"}
	StageNotify  = Stage{4, 4, "notify", "Asking the engine to reload..."}
)

// Event is a progress notification for non-terminal listeners (SSE)
type Event struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Reporter handles CLI progress output. It is safe for concurrent use since
// banks load in parallel.
type Reporter struct {
	mu        sync.Mutex
	out       io.Writer
	startTime time.Time
	verbose   bool
	stage     string
	listener  func(Event)
}

// NewReporter creates a new progress reporter. A nil out discards terminal output.
func NewReporter(out io.Writer, verbose bool) *Reporter {
	if out == nil {
		out = io.Discard
	}
	return &Reporter{
		out:       out,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

// OnEvent registers a callback receiving every stage and completion line
func (r *Reporter) OnEvent(fn func(Event)) {
	r.mu.Lock()
	r.listener = fn
	r.mu.Unlock()
}

func (r *Reporter) emit(msg string) {
	if r.listener != nil {
		r.listener(Event{Stage: r.stage, Message: msg})
	}
}

// StartStage announces the beginning of a stage
func (r *Reporter) StartStage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = stage.Name
	fmt.Fprintf(r.out, "[%d/%d] %s\n", stage.Number, stage.Total, stage.Description)
	r.emit(stage.Description)
}

// Update shows a sub-progress message within a stage
func (r *Reporter) Update(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if r.verbose {
		fmt.Fprintf(r.out, "       %s\n", msg)
	}
	r.emit(msg)
}

// StageComplete shows completion message for a stage
func (r *Reporter) StageComplete(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(r.out, "       %s\n", msg)
	r.emit(msg)
}

// Done announces successful completion
func (r *Reporter) Done(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := time.Since(r.startTime)
	fmt.Fprintln(r.out, "Done! Samples are ready.")
	if root != "" {
		fmt.Fprintf(r.out, "Sample root: %s\n", root)
	}
	fmt.Fprintf(r.out, "Completed in %.1f seconds\n", elapsed.Seconds())
}

// Error announces an error
func (r *Reporter) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "Error: %s\n", err)
}

// Warning announces a non-fatal warning
func (r *Reporter) Warning(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(r.out, "Warning: %s\n", msg)
	r.emit("Warning: " + msg)
}
