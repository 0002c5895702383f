package recognition

import "sync"

// TranscriptState is a snapshot of the growing transcript.
type TranscriptState struct {
	Finalized string `json:"finalized"`
	Interim   string `json:"interim"`
}

// transcript holds the append-only finalized text and the wholesale-replaced
// interim buffer. Finalized never shrinks within a session.
type transcript struct {
	mu        sync.Mutex
	finalized string
	interim   string
}

func (t *transcript) appendFinal(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalized += delta
	t.interim = ""
}

func (t *transcript) setInterim(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interim = text
}

func (t *transcript) clearInterim() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interim = ""
}

func (t *transcript) snapshot() TranscriptState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TranscriptState{Finalized: t.finalized, Interim: t.interim}
}
