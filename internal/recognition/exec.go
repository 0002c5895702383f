package recognition

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execCapability launches an external recognizer process per session. The
// process receives the locale as a flag and emits one JSON event per line on
// stdout; closing its stdin requests a graceful end.
type execCapability struct {
	cmd []string
}

func NewExecCapability(command string) (Capability, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognition command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognition command is empty")
	}
	return &execCapability{cmd: args}, nil
}

func (e *execCapability) OpenSession(ctx context.Context, locale string) (Session, error) {
	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--locale", locale, "--continuous", "--interim")

	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("recognition stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recognition stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recognition command: %w", err)
	}

	s := &execSession{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan Event, 16),
	}
	go s.readLoop(stdout)
	return s, nil
}

type execSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan Event

	stopOnce sync.Once
	stopErr  error
}

func (s *execSession) Events() <-chan Event { return s.events }

// Stop closes the process's stdin; the recognizer is expected to flush, emit
// any trailing results, and exit, which surfaces as the terminal End event.
func (s *execSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stdin.Close()
	})
	return s.stopErr
}

func (s *execSession) readLoop(stdout io.Reader) {
	defer close(s.events)

	terminal := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			s.events <- Event{Kind: EventError, Code: "decode", Message: err.Error()}
			terminal = true
			break
		}
		s.events <- event
		if event.Kind == EventError || event.Kind == EventEnd {
			terminal = true
			break
		}
	}

	err := s.cmd.Wait()
	if terminal {
		return
	}
	if err != nil {
		s.events <- Event{Kind: EventError, Code: "exit", Message: err.Error()}
		return
	}
	s.events <- Event{Kind: EventEnd}
}
