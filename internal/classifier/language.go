package classifier

import (
	"unicode"
)

// Language is the script-level guess used to pick the reply language
type Language struct {
	Code       string
	Name       string
	Native     string
	Confidence float64
}

var english = Language{Code: "en", Name: "English"}

// scripts are checked in order; Han is shared by Chinese and Japanese and is
// resolved after counting
var scripts = []struct {
	lang  Language
	table *unicode.RangeTable
}{
	{Language{Code: "he", Name: "Hebrew", Native: "עברית"}, unicode.Hebrew},
	{Language{Code: "ar", Name: "Arabic", Native: "العربية"}, unicode.Arabic},
	{Language{Code: "ru", Name: "Russian", Native: "Русский"}, unicode.Cyrillic},
	{Language{Code: "ko", Name: "Korean", Native: "한국어"}, unicode.Hangul},
	{Language{Code: "ja", Name: "Japanese", Native: "日本語"}, kana},
	{Language{Code: "zh", Name: "Chinese", Native: "中文"}, unicode.Han},
}

var kana = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3040, Hi: 0x309f, Stride: 1},
		{Lo: 0x30a0, Hi: 0x30ff, Stride: 1},
	},
}

const (
	dominantRatio = 0.1
	mixedRatio    = 0.01
	kanaRatio     = 0.05
)

// DetectLanguage guesses the language of text from its dominant script. Latin
// text, and anything unrecognized, is reported as English.
func DetectLanguage(text string) Language {
	counts := make([]int, len(scripts))
	total := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		for i, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}
	if total == 0 {
		return english
	}

	best, bestRatio := -1, 0.0
	for _, threshold := range []float64{dominantRatio, mixedRatio} {
		for i, n := range counts {
			ratio := float64(n) / float64(total)
			if ratio > threshold && ratio > bestRatio {
				best, bestRatio = i, ratio
			}
		}
		if best >= 0 {
			break
		}
	}
	if best < 0 {
		return english
	}

	lang := scripts[best].lang
	switch lang.Code {
	case "ja", "zh":
		// kanji alone reads as Chinese unless kana are present
		kanaShare := float64(counts[4]) / float64(total)
		cjk := float64(counts[4]+counts[5]) / float64(total)
		if kanaShare > kanaRatio {
			lang = scripts[4].lang
		} else {
			lang = scripts[5].lang
		}
		lang.Confidence = cjk
	default:
		lang.Confidence = bestRatio
	}
	return lang
}

// languageInstruction tells the model which language to answer in
func languageInstruction(lang Language) string {
	if lang.Native == "" {
		return "Respond in English."
	}
	return "Respond in " + lang.Name + " (" + lang.Native + ")."
}
