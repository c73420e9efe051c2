// Package validation runs the startup checks printed before the server
// starts listening.
package validation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// StepStatus is the outcome of one check.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Check inspects one aspect of the environment. A warning lets startup
// continue; a failure aborts it.
type Check func() (StepStatus, string, error)

// Step is a completed check.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// Result summarises a suite run.
type Result struct {
	Steps    []Step
	Passed   int
	Failed   int
	Warnings int
	Duration time.Duration
	Success  bool
}

// FirstError returns the error of the first failed step.
func (r Result) FirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary is a one-line description suitable for logs.
func (r Result) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Validation passed: ")
	} else {
		sb.WriteString("Validation failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.Passed, len(r.Steps))
	if r.Failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.Failed)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}

type namedCheck struct {
	name  string
	check Check
}

// Suite runs checks in order and prints colored progress.
type Suite struct {
	title        string
	output       io.Writer
	checks       []namedCheck
	showProgress bool
	failFast     bool
}

// NewSuite creates an empty suite printing to stdout.
func NewSuite(title string) *Suite {
	return &Suite{title: title, output: os.Stdout, showProgress: true}
}

// WithOutput sets where progress is printed.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// WithFailFast skips the remaining checks after the first failure.
func (s *Suite) WithFailFast(failFast bool) *Suite {
	s.failFast = failFast
	return s
}

// Add appends a check.
func (s *Suite) Add(name string, check Check) *Suite {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
	return s
}

// Run executes every check.
func (s *Suite) Run() Result {
	start := time.Now()
	if s.showProgress {
		s.printHeader()
	}

	steps := make([]Step, 0, len(s.checks))
	failed := false
	for _, c := range s.checks {
		var step Step
		if failed && s.failFast {
			step = Step{Name: c.name, Status: StepSkipped, Message: "skipped after earlier failure"}
		} else {
			step = runStep(c)
		}
		if step.Status == StepFailed {
			failed = true
		}
		if s.showProgress {
			s.printStep(step)
		}
		steps = append(steps, step)
	}

	result := buildResult(steps, time.Since(start))
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func runStep(c namedCheck) Step {
	start := time.Now()
	status, msg, err := c.check()
	if status == StepPending {
		status = StepPassed
		if err != nil {
			status = StepFailed
		}
	}
	return Step{Name: c.name, Status: status, Message: msg, Error: err, Latency: time.Since(start)}
}

func buildResult(steps []Step, d time.Duration) Result {
	r := Result{Steps: steps, Duration: d, Success: true}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			r.Passed++
		case StepFailed:
			r.Failed++
			r.Success = false
		case StepWarning:
			r.Warnings++
		}
	}
	return r
}

func (s *Suite) printHeader() {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", s.title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	var icon string
	var clr *color.Color
	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Error != nil && (step.Status == StepFailed || step.Status == StepWarning) {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *Suite) printSummary(r Result) {
	fmt.Fprintln(s.output)
	if r.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(s.output, "━━━ Ready ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed, %d warnings)", r.Passed, len(r.Steps), r.Warnings)
		ok.Fprintln(s.output, " ━━━")
	} else {
		fail := color.New(color.FgRed, color.Bold)
		fail.Fprintf(s.output, "━━━ Startup checks failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)", r.Passed, r.Failed)
		fail.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}
