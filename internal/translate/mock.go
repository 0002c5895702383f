package translate

import (
	"context"
	"strings"
)

// MockTranslator returns deterministic translations from a dictionary keyed
// by target language, falling back to a "[lang] text" echo. Err, when set,
// makes every call fail.
type MockTranslator struct {
	Dictionary map[string]map[string]string
	Err        error
}

func NewMockTranslator() *MockTranslator {
	return &MockTranslator{
		Dictionary: map[string]map[string]string{
			"en": {
				"สวัสดี": "Hello",
			},
			"th": {
				"Hello": "สวัสดี",
			},
		},
	}
}

func (m *MockTranslator) Translate(_ context.Context, text, _, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if m.Err != nil {
		return "", m.Err
	}
	if byTarget, ok := m.Dictionary[targetLang]; ok {
		if translated, ok := byTarget[strings.TrimSpace(text)]; ok {
			return translated, nil
		}
	}
	return "[" + targetLang + "] " + text, nil
}
