package crunchyroll

import "strings"

// Locale is a language code as used by the Crunchyroll API
type Locale string

const (
	ArME  Locale = "ar-ME"
	ArSA  Locale = "ar-SA"
	CaES  Locale = "ca-ES"
	DeDE  Locale = "de-DE"
	EnIN  Locale = "en-IN"
	EnUS  Locale = "en-US"
	Es419 Locale = "es-419"
	EsES  Locale = "es-ES"
	EsLA  Locale = "es-LA"
	FrFR  Locale = "fr-FR"
	HiIN  Locale = "hi-IN"
	IdID  Locale = "id-ID"
	ItIT  Locale = "it-IT"
	JaJP  Locale = "ja-JP"
	KoKR  Locale = "ko-KR"
	MsMY  Locale = "ms-MY"
	PlPL  Locale = "pl-PL"
	PtBR  Locale = "pt-BR"
	PtPT  Locale = "pt-PT"
	RuRU  Locale = "ru-RU"
	TaIN  Locale = "ta-IN"
	TeIN  Locale = "te-IN"
	ThTH  Locale = "th-TH"
	TrTR  Locale = "tr-TR"
	ViVN  Locale = "vi-VN"
	ZhCN  Locale = "zh-CN"
	ZhHK  Locale = "zh-HK"
	ZhTW  Locale = "zh-TW"
)

var localeNames = map[Locale]string{
	ArME:  "Arabic",
	ArSA:  "Arabic (Saudi Arabia)",
	CaES:  "Catalan",
	DeDE:  "German",
	EnIN:  "English (India)",
	EnUS:  "English (US)",
	Es419: "Spanish (Latin America)",
	EsES:  "Spanish (European)",
	EsLA:  "Spanish (Latin America)",
	FrFR:  "French",
	HiIN:  "Hindi",
	IdID:  "Indonesian",
	ItIT:  "Italian",
	JaJP:  "Japanese",
	KoKR:  "Korean",
	MsMY:  "Malay",
	PlPL:  "Polish",
	PtBR:  "Portuguese (Brazil)",
	PtPT:  "Portuguese (Europe)",
	RuRU:  "Russian",
	TaIN:  "Tamil",
	TeIN:  "Telugu",
	ThTH:  "Thai",
	TrTR:  "Turkish",
	ViVN:  "Vietnamese",
	ZhCN:  "Chinese (Mainland China)",
	ZhHK:  "Chinese (Hong Kong)",
	ZhTW:  "Chinese (Taiwan)",
}

// AllLocales returns every locale the API knows about
func AllLocales() []Locale {
	return []Locale{
		ArME, ArSA, CaES, DeDE, EnIN, EnUS, Es419, EsES, EsLA, FrFR, HiIN, IdID, ItIT, JaJP,
		KoKR, MsMY, PlPL, PtBR, PtPT, RuRU, TaIN, TeIN, ThTH, TrTR, ViVN, ZhCN, ZhHK, ZhTW,
	}
}

// ParseLocale matches s case-insensitively against the known locales
func ParseLocale(s string) (Locale, bool) {
	for _, locale := range AllLocales() {
		if strings.EqualFold(string(locale), s) {
			return locale, true
		}
	}
	return "", false
}

func (l Locale) String() string {
	return string(l)
}

// Name returns the human readable name, or the code for unknown locales
func (l Locale) Name() string {
	if name, ok := localeNames[l]; ok {
		return name
	}
	return string(l)
}

// Known reports whether l is one of AllLocales
func (l Locale) Known() bool {
	_, ok := localeNames[l]
	return ok
}
