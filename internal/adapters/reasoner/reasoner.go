// Package reasoner runs agent turns through an external command-line
// model. The prompt is written to the command's stdin and its stdout is the
// agent's reply.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/logging"
)

const defaultTimeout = 5 * time.Minute

// Config configures a CLIReasoner.
type Config struct {
	// Command is the default command line, split on whitespace.
	Command string
	// Overrides maps a user id to its own command line.
	Overrides map[string]string
	// Timeout bounds one invocation; zero means five minutes.
	Timeout time.Duration
	// RateLimitPerMinute caps invocations per user; zero disables it.
	RateLimitPerMinute int
	// WorkDir is the working directory for the command.
	WorkDir string
}

// CLIReasoner implements core.Reasoner by shelling out.
type CLIReasoner struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a CLIReasoner.
func New(cfg Config, logger *logging.Logger) (*CLIReasoner, error) {
	if len(strings.Fields(cfg.Command)) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "reasoner command is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	overrides := make(map[string]string, len(cfg.Overrides))
	for uid, cmd := range cfg.Overrides {
		overrides[strings.ToLower(uid)] = cmd
	}
	cfg.Overrides = overrides

	return &CLIReasoner{
		cfg:      cfg,
		logger:   logger.WithComponent("reasoner"),
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// CommandFor returns the command line used for userID.
func (r *CLIReasoner) CommandFor(userID string) string {
	if cmd, ok := r.cfg.Overrides[strings.ToLower(userID)]; ok && strings.TrimSpace(cmd) != "" {
		return cmd
	}
	return r.cfg.Command
}

func (r *CLIReasoner) limiter(userID string) *rate.Limiter {
	if r.cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.cfg.RateLimitPerMinute)), 1)
		r.limiters[userID] = l
	}
	return l
}

// Invoke runs the command for userID with prompt on stdin.
func (r *CLIReasoner) Invoke(ctx context.Context, userID, prompt string) (string, error) {
	if l := r.limiter(userID); l != nil {
		if err := l.Wait(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
				return "", ctx.Err()
			}
			return "", core.ErrRateLimit(fmt.Sprintf("reasoner rate limit for %s: %v", userID, err))
		}
	}

	parts := strings.Fields(r.CommandFor(userID))
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	// #nosec G204 -- command comes from operator configuration
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	configureProcAttr(cmd)
	cmd.Dir = r.cfg.WorkDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(os.Environ(), "MORDECAI_MANAGED=true", "MORDECAI_AGENT="+userID)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := r.logger.WithAgent(userID)
	log.Debug("reasoner: invoking", "command", parts[0], "prompt_length", len(prompt))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Error("reasoner: timeout", "duration", duration, "timeout", r.cfg.Timeout)
		return "", core.ErrTimeout(fmt.Sprintf("reasoner timed out after %v", r.cfg.Timeout))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return "", ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Error("reasoner: command failed",
				"exit_code", exitErr.ExitCode(),
				"stderr", truncate(stderr.String(), 1000),
				"duration", duration,
			)
			return "", classifyError(exitErr.ExitCode(), stderr.String(), stdout.String())
		}
		return "", core.ErrExecution(core.CodeReasonerFailed, "starting reasoner command").WithCause(err)
	}

	reply := strings.TrimSpace(stdout.String())
	if reply == "" {
		return "", core.ErrExecution(core.CodeReasonerFailed, "reasoner returned empty output")
	}
	log.Debug("reasoner: completed", "duration", duration, "reply_length", len(reply))
	return reply, nil
}

// classifyError converts a failed exit into a domain error.
func classifyError(exitCode int, stderr, stdout string) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = errorFromOutput(stdout)
	}
	if msg == "" {
		msg = "(no error message captured)"
	}
	lower := strings.ToLower(msg)

	if containsAny(lower, "rate limit", "too many requests", "429", "quota") {
		return core.ErrRateLimit(msg)
	}
	if containsAny(lower, "connection", "network", "unreachable") {
		return core.ErrExecution("NETWORK", msg)
	}
	return core.ErrExecution(core.CodeReasonerFailed,
		fmt.Sprintf("command failed with exit code %d: %s", exitCode, msg))
}

// errorFromOutput picks an error message from stdout, preferring a
// trailing JSON object with an "error" field, then the last plain line.
func errorFromOutput(stdout string) string {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var obj struct {
			Error json.RawMessage `json:"error"`
		}
		if json.Unmarshal([]byte(line), &obj) != nil || len(obj.Error) == 0 {
			continue
		}
		var s string
		if json.Unmarshal(obj.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(obj.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" && !strings.HasPrefix(line, "{") {
			return truncate(line, 200)
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... [truncated]"
}
