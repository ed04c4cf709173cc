package editor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/zjrosen/cardsmith/internal/log"
)

// CommandFactoryFunc creates the bridge process. Tests substitute it to
// avoid spawning a real editor.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// BridgeConfig configures a BridgeEditor.
type BridgeConfig struct {
	Command        string
	Args           []string
	Timeout        time.Duration // Per call; 0 means no limit
	CommandFactory CommandFactoryFunc
}

// ErrBridgeClosed is returned when the bridge process has exited.
var ErrBridgeClosed = errors.New("editor bridge closed")

// BridgeEditor drives an external automation process that speaks
// newline-delimited JSON over stdio:
//
//	-> {"id":1,"method":"open","params":{"path":"..."}}
//	<- {"id":1,"result":{"handle":"doc-1"}}
//	<- {"id":2,"error":"layer not found"}
//
// One call is in flight at a time. The process is started on first use and
// restarted after a call times out.
type BridgeEditor struct {
	cfg BridgeConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	outputs []io.Closer // stdout and stderr
	readers sync.WaitGroup
	replies chan []byte
	done    chan struct{}
	nextID  int64
}

// readerGrace bounds how long stopLocked waits for the output readers after
// the process is killed before closing the pipes under them.
const readerGrace = 2 * time.Second

// NewBridgeEditor creates a bridge editor; the process starts lazily.
func NewBridgeEditor(cfg BridgeConfig) *BridgeEditor {
	return &BridgeEditor{cfg: cfg}
}

type bridgeRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type bridgeResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// OpenDocument asks the bridge to open templatePath.
func (b *BridgeEditor) OpenDocument(ctx context.Context, templatePath string) (Handle, error) {
	var out struct {
		Handle Handle `json:"handle"`
	}
	if err := b.call(ctx, "open", map[string]string{"path": templatePath}, &out); err != nil {
		return "", &DocumentError{Op: "open", Path: templatePath, Err: err}
	}
	if out.Handle == "" {
		return "", &DocumentError{Op: "open", Path: templatePath, Err: errors.New("bridge returned no handle")}
	}
	return out.Handle, nil
}

// DrawLayer sends one layer operation.
func (b *BridgeEditor) DrawLayer(ctx context.Context, h Handle, spec LayerSpec) error {
	if err := spec.Validate(); err != nil {
		return &DocumentError{Op: "draw", Path: spec.Name, Err: err}
	}
	params := struct {
		Handle Handle    `json:"handle"`
		Layer  LayerSpec `json:"layer"`
	}{h, spec}
	if err := b.call(ctx, "draw", params, nil); err != nil {
		return &DocumentError{Op: "draw", Path: spec.Name, Err: err}
	}
	return nil
}

// ExportDocument asks the bridge to save the document.
func (b *BridgeEditor) ExportDocument(ctx context.Context, h Handle, path string, ft Filetype) error {
	params := struct {
		Handle   Handle   `json:"handle"`
		Path     string   `json:"path"`
		Filetype Filetype `json:"filetype"`
	}{h, path, ft}
	if err := b.call(ctx, "export", params, nil); err != nil {
		return &DocumentError{Op: "export", Path: path, Err: err}
	}
	return nil
}

// CloseDocument asks the bridge to close the document without saving.
func (b *BridgeEditor) CloseDocument(ctx context.Context, h Handle) error {
	if err := b.call(ctx, "close", map[string]Handle{"handle": h}, nil); err != nil {
		return &DocumentError{Op: "close", Err: err}
	}
	return nil
}

// Close stops the bridge process.
func (b *BridgeEditor) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	return nil
}

func (b *BridgeEditor) call(ctx context.Context, method string, params, result any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.startLocked(); err != nil {
		return err
	}

	b.nextID++
	id := b.nextID
	line, err := json.Marshal(bridgeRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	// A bridge that stops reading blocks the write once the pipe fills.
	stdin, written := b.stdin, make(chan error, 1)
	go func() {
		_, err := stdin.Write(append(line, '\n'))
		written <- err
	}()
	select {
	case err := <-written:
		if err != nil {
			b.stopLocked()
			return fmt.Errorf("writing %s request: %w", method, err)
		}
	case <-ctx.Done():
		log.Warn(log.CatEditor, "bridge write abandoned", "method", method, "id", id, "error", ctx.Err())
		b.stopLocked()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			// The process state is unknown after an abandoned call.
			log.Warn(log.CatEditor, "bridge call abandoned", "method", method, "id", id, "error", ctx.Err())
			b.stopLocked()
			return ctx.Err()
		case raw, ok := <-b.replies:
			if !ok {
				b.stopLocked()
				return ErrBridgeClosed
			}
			var resp bridgeResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				log.Debug(log.CatEditor, "bridge parse error", "error", err, "line", string(raw))
				continue
			}
			if resp.ID != id {
				log.Debug(log.CatEditor, "stale bridge reply", "want", id, "got", resp.ID)
				continue
			}
			if resp.Error != "" {
				return errors.New(resp.Error)
			}
			if result != nil && len(resp.Result) > 0 {
				if err := json.Unmarshal(resp.Result, result); err != nil {
					return fmt.Errorf("decoding %s result: %w", method, err)
				}
			}
			return nil
		}
	}
}

func (b *BridgeEditor) startLocked() error {
	if b.cmd != nil {
		return nil
	}
	if b.cfg.Command == "" {
		return fmt.Errorf("editor bridge: command is required")
	}

	procCtx, cancel := context.WithCancel(context.Background())
	var cmd *exec.Cmd
	if b.cfg.CommandFactory != nil {
		cmd = b.cfg.CommandFactory(procCtx, b.cfg.Command, b.cfg.Args...)
	} else {
		// #nosec G204 -- command comes from the user's config file
		cmd = exec.CommandContext(procCtx, b.cfg.Command, b.cfg.Args...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("editor bridge: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("editor bridge: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("editor bridge: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("editor bridge: starting %s: %w", b.cfg.Command, err)
	}

	replies := make(chan []byte, 16)
	done := make(chan struct{})
	b.readers.Add(2)
	go func() {
		defer b.readers.Done()
		readLines(stdout, func(line []byte) {
			select {
			case replies <- line:
			case <-done:
			}
		}, func() { close(replies) })
	}()
	go func() {
		defer b.readers.Done()
		readLines(stderr, func(line []byte) {
			log.Debug(log.CatEditor, "bridge stderr", "line", string(line))
		}, nil)
	}()

	b.cmd, b.stdin, b.replies, b.done, b.cancel = cmd, stdin, replies, done, cancel
	b.outputs = []io.Closer{stdout, stderr}
	log.Info(log.CatEditor, "started editor bridge", "command", b.cfg.Command, "pid", cmd.Process.Pid)
	return nil
}

func (b *BridgeEditor) stopLocked() {
	if b.cmd == nil {
		return
	}
	close(b.done)
	_ = b.stdin.Close()
	b.cancel()

	// Wait must not run while the pipes are still being read.
	drained := make(chan struct{})
	go func() {
		b.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(readerGrace):
		// A child of the bridge can keep the pipes open after the kill.
		for _, c := range b.outputs {
			_ = c.Close()
		}
		<-drained
	}
	_ = b.cmd.Wait()
	log.Info(log.CatEditor, "stopped editor bridge", "command", b.cfg.Command)
	b.cmd, b.stdin, b.outputs, b.replies, b.done, b.cancel = nil, nil, nil, nil, nil, nil
}

func readLines(r io.Reader, onLine func([]byte), onDone func()) {
	if onDone != nil {
		defer onDone()
	}
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		onLine(cp)
	}
}
