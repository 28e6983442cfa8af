package notifier

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads the message catalogue for lang from dir.
// Unknown languages fall back to the English source strings.
func Configure(dir, lang string) {
	gotext.Configure(dir, strings.ToLower(lang), "default")
}

// Language returns the active catalogue language.
func Language() string {
	lang := gotext.GetLanguage()
	if lang == "und" || lang == "" {
		return "en"
	}
	return lang
}

// T translates msgID and applies Printf-style vars.
func T(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
