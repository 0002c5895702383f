package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// execSynth plays utterances through an external command. The utterance is
// written as JSON to the command's stdin; playback lasts for the process
// lifetime. Cancelling the context kills the process.
type execSynth struct {
	cmd []string
}

func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Speak(ctx context.Context, utterance Utterance) (<-chan Transition, error) {
	payload, err := json.Marshal(utterance)
	if err != nil {
		return nil, fmt.Errorf("encode utterance: %w", err)
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("speech stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start speech command: %w", err)
	}

	transitions := make(chan Transition, 2)
	go func() {
		defer close(transitions)

		if _, err := stdin.Write(payload); err != nil {
			_ = cmd.Wait()
			transitions <- Transition{Phase: PhaseFailed, Detail: err.Error()}
			return
		}
		_ = stdin.Close()

		transitions <- Transition{Phase: PhaseStarted}

		if err := cmd.Wait(); err != nil {
			if ctx.Err() != nil {
				// interrupted; the replacement utterance owns the state
				return
			}
			transitions <- Transition{Phase: PhaseFailed, Detail: err.Error()}
			return
		}
		transitions <- Transition{Phase: PhaseEnded}
	}()
	return transitions, nil
}
