package clipboard

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// Port places text on the system clipboard. Failures are logged by callers,
// never surfaced to the user.
type Port interface {
	SetText(ctx context.Context, text string) error
}

// execPort shells out to a configured command (xclip, wl-copy, pbcopy) and
// writes the text on its stdin.
type execPort struct {
	cmd []string
}

func NewExecPort(command string) (Port, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse clipboard command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("clipboard command is empty")
	}
	return &execPort{cmd: args}, nil
}

func (e *execPort) SetText(ctx context.Context, text string) error {
	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("clipboard command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Memory is an in-process clipboard used when no command is configured.
type Memory struct {
	mu   sync.Mutex
	text string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SetText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

// Text returns the most recently copied string.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}
