package transcribe

import "strings"

// scriptVariants maps script or region variants to the base language the engines expect
var scriptVariants = map[string]string{
	"zh-hant": "zh",
	"zh-hans": "zh",
	"zh-tw":   "zh",
	"zh-cn":   "zh",
	"zh-hk":   "zh",
}

// NormalizeLanguage returns the hint to pass to the engine.
// An empty result means the engine should detect the language itself.
func NormalizeLanguage(hint string) string {
	lang := strings.TrimSpace(hint)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}

	key := strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
	if base, ok := scriptVariants[key]; ok {
		return base
	}
	return lang
}
