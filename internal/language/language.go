// Package language maps user-facing language labels to whisper model
// language codes. The table is fixed at build time; duplicate labels
// such as the two Portuguese variants resolve to one underlying code.
package language

import "strings"

type entry struct {
	label string // UI display label
	code  string // whisper language code (ISO 639-1)
}

var table = []entry{
	{"English", "en"},
	{"Mandarin Chinese", "zh"},
	{"Hindi", "hi"},
	{"Spanish", "es"},
	{"Modern Standard Arabic", "ar"},
	{"French", "fr"},
	{"Portuguese (European)", "pt"},
	{"Portuguese (Brazilian)", "pt"},
	{"Russian", "ru"},
	{"Indonesian", "id"},
	{"Urdu", "ur"},
	{"Standard German", "de"},
	{"Japanese", "ja"},
	{"Vietnamese", "vi"},
	{"Turkish", "tr"},
	{"Italian", "it"},
	{"Korean", "ko"},
	{"Romanian", "ro"},
	{"Greek", "el"},
	{"Persian", "fa"},
}

var (
	byLabel map[string]string
	byCode  map[string]struct{}
)

func init() {
	byLabel = make(map[string]string, len(table))
	byCode = make(map[string]struct{}, len(table))
	for _, e := range table {
		byLabel[strings.ToLower(e.label)] = e.code
		byCode[e.code] = struct{}{}
	}
}

// Labels returns the UI language labels in display order.
func Labels() []string {
	out := make([]string, len(table))
	for i, e := range table {
		out[i] = e.label
	}
	return out
}

// Resolve maps a label or code to a whisper language code. Empty input
// and "auto" resolve to the empty code, meaning model auto-detection.
// Unknown names report ok=false.
func Resolve(name string) (code string, ok bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "auto") {
		return "", true
	}

	lower := strings.ToLower(trimmed)
	if code, found := byLabel[lower]; found {
		return code, true
	}
	if _, found := byCode[lower]; found {
		return lower, true
	}
	return "", false
}

// Supported reports whether the name resolves to a known language or auto.
func Supported(name string) bool {
	_, ok := Resolve(name)
	return ok
}
