package translate

import (
	"context"
	"errors"
)

// ErrTranslationFailed is the single failure class callers see: transport
// failures, non-success HTTP statuses, and non-success payload statuses all
// collapse into it.
var ErrTranslationFailed = errors.New("translation failed")

// DiagnosticFailed is the user-facing diagnostic for any translation failure.
const DiagnosticFailed = "Translation failed. Please try again."

// Translator converts text between languages. Implementations are stateless
// request/response wrappers; empty or whitespace-only text short-circuits to
// a no-op without issuing a request.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
