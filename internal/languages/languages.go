package languages

// Language is one entry of the closed supported-language set.
type Language struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// DefaultLocale is used when a code has no mapping.
const DefaultLocale = "en-US"

var table = []Language{
	{Code: "en", Name: "English", Locale: "en-US"},
	{Code: "th", Name: "Thai", Locale: "th-TH"},
	{Code: "es", Name: "Spanish", Locale: "es-ES"},
	{Code: "fr", Name: "French", Locale: "fr-FR"},
	{Code: "de", Name: "German", Locale: "de-DE"},
	{Code: "ja", Name: "Japanese", Locale: "ja-JP"},
	{Code: "ko", Name: "Korean", Locale: "ko-KR"},
	{Code: "zh", Name: "Chinese", Locale: "zh-CN"},
	{Code: "vi", Name: "Vietnamese", Locale: "vi-VN"},
	{Code: "pt", Name: "Portuguese", Locale: "pt-BR"},
}

// Supported returns the closed set in stable order.
func Supported() []Language {
	out := make([]Language, len(table))
	copy(out, table)
	return out
}

// LocaleFor maps a display code to its speech locale. The mapping is total:
// unknown codes fall back to DefaultLocale.
func LocaleFor(code string) string {
	for _, lang := range table {
		if lang.Code == code {
			return lang.Locale
		}
	}
	return DefaultLocale
}

// IsSupported reports whether code is part of the supported set.
func IsSupported(code string) bool {
	for _, lang := range table {
		if lang.Code == code {
			return true
		}
	}
	return false
}
