package session

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"

	"crunchy-cli/crunchyroll"
	"crunchy-cli/internal"
)

// DefaultLocale is used when neither --lang nor the system locale is usable
const DefaultLocale = crunchyroll.EnUS

// SupportedLocales are the display languages accepted by --lang
var SupportedLocales = []crunchyroll.Locale{
	crunchyroll.ZhCN,
	crunchyroll.ZhHK,
	crunchyroll.ZhTW,
	crunchyroll.EnUS,
	crunchyroll.ArME,
	crunchyroll.DeDE,
	crunchyroll.EsES,
	crunchyroll.Es419,
	crunchyroll.FrFR,
	crunchyroll.ItIT,
	crunchyroll.PtBR,
	crunchyroll.PtPT,
	crunchyroll.RuRU,
}

func isSupported(locale crunchyroll.Locale) bool {
	for _, supported := range SupportedLocales {
		if supported == locale {
			return true
		}
	}
	return false
}

// ResolveLocale picks the display locale: an explicit --lang value, else the
// system locale, else DefaultLocale with a warning
func (m *Manager) ResolveLocale(lang string) (crunchyroll.Locale, error) {
	if lang != "" {
		locale, ok := crunchyroll.ParseLocale(lang)
		if !ok || !isSupported(locale) {
			return "", unsupportedLocaleError(lang)
		}
		return locale, nil
	}

	locale := systemLocale(m.lookupEnv)
	if !isSupported(locale) {
		internal.LogWarn("Recognized system locale is not supported. Using en-US as default. Use `--lang` to overwrite the used language")
		return DefaultLocale, nil
	}
	return locale, nil
}

func unsupportedLocaleError(lang string) error {
	supported := make([]string, 0, len(SupportedLocales))
	for _, locale := range SupportedLocales {
		supported = append(supported, fmt.Sprintf("`%s` (%s)", locale, locale.Name()))
	}

	return internal.NewValidationErrorWithValue("lang",
		fmt.Sprintf("Via `--lang` specified language is not supported. Supported languages: %s", strings.Join(supported, ", ")),
		lang)
}

// systemLocale reads the POSIX locale variables in precedence order and maps
// the first usable one onto an API locale
func systemLocale(lookupEnv func(string) (string, bool)) crunchyroll.Locale {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		value, ok := lookupEnv(name)
		if !ok || value == "" {
			continue
		}
		return normalizeLocale(value)
	}
	return ""
}

// normalizeLocale turns values like "de_DE.UTF-8" or "pt" into "de-DE" / "pt-BR"
func normalizeLocale(value string) crunchyroll.Locale {
	if i := strings.IndexAny(value, ".@"); i >= 0 {
		value = value[:i]
	}

	tag, err := language.Parse(strings.ReplaceAll(value, "_", "-"))
	if err != nil {
		return ""
	}

	base, _ := tag.Base()
	region, confidence := tag.Region()
	if confidence == language.No {
		return crunchyroll.Locale(base.String())
	}

	locale, ok := crunchyroll.ParseLocale(fmt.Sprintf("%s-%s", base, region))
	if !ok {
		return crunchyroll.Locale(fmt.Sprintf("%s-%s", base, region))
	}
	return locale
}
