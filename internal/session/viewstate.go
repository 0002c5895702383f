package session

import "sync"

// State is the complete view of one conversation: the growing transcript,
// language selection, translation slots, and status flags. Snapshots are
// value copies and safe to hand out.
type State struct {
	Finalized          string `json:"finalized"`
	Interim            string `json:"interim"`
	InputLanguage      string `json:"input_language"`
	OutputLanguage     string `json:"output_language"`
	Translated         string `json:"translated"`
	ReplyText          string `json:"reply_text"`
	ReplyTranslated    string `json:"reply_translated"`
	TranslatingForward bool   `json:"translating_forward"`
	TranslatingReply   bool   `json:"translating_reply"`
	Listening          bool   `json:"listening"`
	Speaking           bool   `json:"speaking"`
	Diagnostic         string `json:"diagnostic,omitempty"`
}

// Store holds the view state behind named transition functions. Subscribers
// are invoked under the lock so they observe snapshots in transition order;
// they must not call back into the store.
type Store struct {
	mu          sync.Mutex
	state       State
	subscribers []func(State)
}

func NewStore(inputLanguage, outputLanguage string) *Store {
	return &Store{
		state: State{
			InputLanguage:  inputLanguage,
			OutputLanguage: outputLanguage,
		},
	}
}

// Subscribe registers a listener for every state transition.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AppendFinal appends committed transcript text. Finalized only ever grows;
// committing clears any outstanding interim text.
func (s *Store) AppendFinal(delta string) {
	s.transition(func(state *State) {
		state.Finalized += delta
		state.Interim = ""
	})
}

// SetInterim replaces the interim transcript wholesale.
func (s *Store) SetInterim(text string) {
	s.transition(func(state *State) {
		state.Interim = text
	})
}

// ClearInterim discards outstanding interim text without committing it.
func (s *Store) ClearInterim() {
	s.transition(func(state *State) {
		state.Interim = ""
	})
}

func (s *Store) SetLanguages(input, output string) {
	s.transition(func(state *State) {
		state.InputLanguage = input
		state.OutputLanguage = output
	})
}

func (s *Store) SetTranslated(text string) {
	s.transition(func(state *State) {
		state.Translated = text
	})
}

func (s *Store) SetReplyText(text string) {
	s.transition(func(state *State) {
		state.ReplyText = text
	})
}

func (s *Store) SetReplyTranslated(text string) {
	s.transition(func(state *State) {
		state.ReplyTranslated = text
	})
}

func (s *Store) SetTranslatingForward(busy bool) {
	s.transition(func(state *State) {
		state.TranslatingForward = busy
	})
}

func (s *Store) SetTranslatingReply(busy bool) {
	s.transition(func(state *State) {
		state.TranslatingReply = busy
	})
}

// SetListening records the recognition status. The diagnostic slot is
// single-valued and only replaced by a non-empty diagnostic; a clean stop
// does not erase an earlier message.
func (s *Store) SetListening(listening bool, diagnostic string) {
	s.transition(func(state *State) {
		state.Listening = listening
		if diagnostic != "" {
			state.Diagnostic = diagnostic
		}
	})
}

func (s *Store) SetSpeaking(speaking bool) {
	s.transition(func(state *State) {
		state.Speaking = speaking
	})
}

// SetDiagnostic replaces the single diagnostic slot.
func (s *Store) SetDiagnostic(message string) {
	s.transition(func(state *State) {
		state.Diagnostic = message
	})
}

func (s *Store) transition(mutate func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
	snapshot := s.state
	for _, fn := range s.subscribers {
		fn(snapshot)
	}
}
