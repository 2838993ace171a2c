// Package external drives gathering phases implemented as separate
// executables. A phase command receives its request as one JSON document on
// stdin and reports back with JSON lines on stdout:
//
//	{"type":"progress","category":"directory_basic","kind":"progress","step":5,"total":100}
//	{"type":"progress","category":"directory_basic","kind":"finished"}
//	{"type":"resolve","addr":"10.0.0.7"}
//	{"type":"result","dataset_id":"42","graph_id":"7"}
//
// A resolve message is answered on stdin with
// {"type":"resolved","addr":"10.0.0.7","name":"host7.corp.local"} (or an
// "error" field). Lines that are not JSON objects are logged and skipped.
// Stderr is forwarded to the logger. A non-zero exit fails the phase.
package external

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dirgather/internal/pipeline"
	"github.com/JakeFAU/dirgather/internal/progress"
)

// ErrNoResult is returned when a directory command exits without reporting
// a result line.
var ErrNoResult = errors.New("command reported no result")

const (
	maxLineSize = 1 << 20
	waitDelay   = 5 * time.Second
)

// Message types exchanged with a phase command.
const (
	TypeProgress = "progress"
	TypeResolve  = "resolve"
	TypeResolved = "resolved"
	TypeResult   = "result"
)

// Command describes one executable.
type Command struct {
	Path string
	Args []string
	// Dir is the working directory; empty keeps the caller's.
	Dir string
	// Env is appended to the parent environment.
	Env []string
}

// Configured reports whether a path was set.
func (c Command) Configured() bool {
	return strings.TrimSpace(c.Path) != ""
}

// message is a line on the command's stdout.
type message struct {
	Type string `json:"type"`

	Category progress.Category `json:"category,omitempty"`
	Kind     progress.Kind     `json:"kind,omitempty"`
	Total    *int64            `json:"total,omitempty"`
	Step     int64             `json:"step,omitempty"`

	Addr string `json:"addr,omitempty"`

	DatasetID string `json:"dataset_id,omitempty"`
	GraphID   string `json:"graph_id,omitempty"`
}

// reply is a line written back to the command's stdin.
type reply struct {
	Type  string `json:"type"`
	Addr  string `json:"addr"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

// session carries the per-invocation hooks of one command run.
type session struct {
	phase    pipeline.Phase
	resolver pipeline.Resolver
	emitter  progress.Emitter
	result   *pipeline.DirectoryResult
}

// run starts cmd, sends request, and services its stdout until it exits.
func run(ctx context.Context, logger *zap.Logger, cmd Command, request any, sess *session) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	proc := exec.CommandContext(ctx, cmd.Path, cmd.Args...) // #nosec G204 -- operator supplied command
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(proc.Environ(), cmd.Env...)
	}
	proc.WaitDelay = waitDelay

	stdin, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	logger = logger.With(zap.String("phase", string(sess.phase)), zap.Int("pid", proc.Process.Pid))
	logger.Debug("phase command started", zap.String("path", cmd.Path))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardStderr(logger, stderr)
	}()

	w := &replyWriter{w: stdin}
	var writeErr error
	if err := w.writeLine(payload); err != nil {
		writeErr = fmt.Errorf("send request: %w", err)
	}
	var readErr error
	if writeErr == nil {
		readErr = serve(ctx, logger, stdout, w, sess)
	}
	_ = stdin.Close()
	if readErr != nil || writeErr != nil {
		// Unblock a command still writing to us before waiting on it.
		_, _ = io.Copy(io.Discard, stdout)
	}
	wg.Wait()
	waitErr := proc.Wait()

	switch {
	case waitErr != nil:
		return fmt.Errorf("command %s: %w", cmd.Path, waitErr)
	case writeErr != nil:
		return writeErr
	case readErr != nil:
		return readErr
	}
	logger.Debug("phase command exited")
	return nil
}

// serve consumes stdout lines until EOF.
func serve(ctx context.Context, logger *zap.Logger, stdout io.Reader, w *replyWriter, sess *session) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			logger.Info("command output", zap.String("line", line))
			continue
		}
		if err := handle(ctx, logger, msg, w, sess); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read command output: %w", err)
	}
	return nil
}

func handle(ctx context.Context, logger *zap.Logger, msg message, w *replyWriter, sess *session) error {
	switch msg.Type {
	case TypeProgress:
		evt := progress.Event{Category: msg.Category, Kind: msg.Kind, Total: msg.Total, Step: msg.Step}
		if err := evt.Validate(); err != nil {
			logger.Debug("dropping progress line", zap.Error(err))
			return nil
		}
		if sess.emitter != nil {
			sess.emitter.Emit(evt)
		}
	case TypeResolve:
		out := reply{Type: TypeResolved, Addr: msg.Addr}
		if sess.resolver == nil {
			out.Error = "no resolver"
		} else if name, err := sess.resolver.LookupAddr(ctx, msg.Addr); err != nil {
			out.Error = err.Error()
		} else {
			out.Name = name
		}
		if err := w.write(out); err != nil {
			return fmt.Errorf("answer resolve: %w", err)
		}
	case TypeResult:
		if sess.result == nil {
			logger.Debug("ignoring result line", zap.String("dataset_id", msg.DatasetID))
			return nil
		}
		sess.result.DatasetID = msg.DatasetID
		sess.result.GraphID = msg.GraphID
	default:
		logger.Debug("unknown message type", zap.String("type", msg.Type))
	}
	return nil
}

func forwardStderr(logger *zap.Logger, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logger.Info("command stderr", zap.String("line", line))
		}
	}
}

type replyWriter struct {
	w io.Writer
}

func (r *replyWriter) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return r.writeLine(b)
}

func (r *replyWriter) writeLine(b []byte) error {
	if _, err := r.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}
