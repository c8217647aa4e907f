package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Hebrew text", "שלום, איך אני יכול לעזור לך?", "he"},
		{"English text", "Hello, how can I help you?", "en"},
		{"Arabic text", "مرحبا، كيف يمكنني مساعدتك؟", "ar"},
		{"Russian text", "Привет, как я могу помочь?", "ru"},
		{"Chinese text", "你好，我能怎么帮助你？", "zh"},
		{"Japanese text", "こんにちは、どのようにお手伝いできますか？", "ja"},
		{"Korean text", "안녕하세요, 어떻게 도와드릴까요?", "ko"},
		{"Empty", "   ", "en"},
		{"Latin with accents", "Bonjour, ça va très bien", "en"},
		{"Mostly English with a Hebrew name", "Thanks for the call yesterday, regards from the whole team at the office, דני", "he"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectLanguage(tt.input).Code)
		})
	}
}

func TestDetectLanguage_Confidence(t *testing.T) {
	lang := DetectLanguage("Привет")
	assert.InDelta(t, 1.0, lang.Confidence, 1e-9)

	assert.Zero(t, DetectLanguage("hello").Confidence)
}

func TestLanguageInstruction(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"he", "Respond in Hebrew (עברית)."},
		{"ar", "Respond in Arabic (العربية)."},
		{"ja", "Respond in Japanese (日本語)."},
		{"en", "Respond in English."},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			lang := english
			for _, s := range scripts {
				if s.lang.Code == tt.code {
					lang = s.lang
				}
			}
			assert.Equal(t, tt.expected, languageInstruction(lang))
		})
	}
}
