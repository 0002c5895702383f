package session

import "testing"

func TestStoreAppendFinalGrowsAndClearsInterim(t *testing.T) {
	t.Parallel()

	store := NewStore("th", "en")
	store.SetInterim("hel")
	store.SetInterim("hello wor")
	store.AppendFinal("hello world. ")
	store.SetInterim("how are")
	store.AppendFinal("how are you?")

	snap := store.Snapshot()
	if snap.Finalized != "hello world. how are you?" {
		t.Fatalf("unexpected finalized text: %q", snap.Finalized)
	}
	if snap.Interim != "" {
		t.Fatalf("interim must be cleared by a final commit, got %q", snap.Interim)
	}
}

func TestStoreSubscribersObserveTransitionsInOrder(t *testing.T) {
	t.Parallel()

	store := NewStore("th", "en")
	var finals []string
	store.Subscribe(func(s State) {
		finals = append(finals, s.Finalized)
	})

	store.AppendFinal("a")
	store.AppendFinal("b")
	store.AppendFinal("c")

	want := []string{"a", "ab", "abc"}
	if len(finals) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(finals))
	}
	for i, w := range want {
		if finals[i] != w {
			t.Fatalf("notification %d: expected %q, got %q", i, w, finals[i])
		}
	}
}

func TestStoreCleanStopKeepsDiagnostic(t *testing.T) {
	t.Parallel()

	store := NewStore("th", "en")
	store.SetListening(false, "Microphone access was denied.")
	store.SetListening(false, "")

	if got := store.Snapshot().Diagnostic; got != "Microphone access was denied." {
		t.Fatalf("clean stop must not erase the diagnostic, got %q", got)
	}

	store.SetListening(false, "No speech was detected. Please try again.")
	if got := store.Snapshot().Diagnostic; got != "No speech was detected. Please try again." {
		t.Fatalf("newer diagnostic must replace the previous one, got %q", got)
	}
}
