package language

// Profile captures how the assistant speaks and listens in one language.
type Profile struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	NativeName  string `json:"nativeName"`
	Script      string `json:"script"`
	ASRLocale   string `json:"asrLocale"`
	TTSLocale   string `json:"ttsLocale"`
	VoiceID     string `json:"voiceId,omitempty"`
	OpenAIVoice string `json:"openaiVoice,omitempty"`
	// PromptHint is appended to the system prompt when replying in this language.
	PromptHint string `json:"promptHint,omitempty"`
}

// DefaultCode is used when neither a hint nor detection yields a language.
const DefaultCode = "en"

// Seed returns the languages supported out of the box.
func Seed() []Profile {
	return []Profile{
		{
			Code:        "en",
			Name:        "English",
			NativeName:  "English",
			Script:      "Latin",
			ASRLocale:   "en-US",
			TTSLocale:   "en-US",
			VoiceID:     "en_female_amy_jupiter_bigtts",
			OpenAIVoice: "nova",
			PromptHint:  "Reply in clear, simple English.",
		},
		{
			Code:        "hi",
			Name:        "Hindi",
			NativeName:  "हिन्दी",
			Script:      "Devanagari",
			ASRLocale:   "hi-IN",
			TTSLocale:   "hi-IN",
			OpenAIVoice: "alloy",
			PromptHint:  "Reply in Hindi using Devanagari script. Keep financial terms such as EMI, SIP or FD in English where that is how people say them.",
		},
		{
			Code:        "mr",
			Name:        "Marathi",
			NativeName:  "मराठी",
			Script:      "Devanagari",
			ASRLocale:   "mr-IN",
			TTSLocale:   "mr-IN",
			OpenAIVoice: "alloy",
			PromptHint:  "Reply in Marathi using Devanagari script.",
		},
		{
			Code:        "bn",
			Name:        "Bengali",
			NativeName:  "বাংলা",
			Script:      "Bengali",
			ASRLocale:   "bn-IN",
			TTSLocale:   "bn-IN",
			OpenAIVoice: "alloy",
			PromptHint:  "Reply in Bengali script.",
		},
		{
			Code:        "ta",
			Name:        "Tamil",
			NativeName:  "தமிழ்",
			Script:      "Tamil",
			ASRLocale:   "ta-IN",
			TTSLocale:   "ta-IN",
			OpenAIVoice: "shimmer",
			PromptHint:  "Reply in Tamil script.",
		},
		{
			Code:        "te",
			Name:        "Telugu",
			NativeName:  "తెలుగు",
			Script:      "Telugu",
			ASRLocale:   "te-IN",
			TTSLocale:   "te-IN",
			OpenAIVoice: "shimmer",
			PromptHint:  "Reply in Telugu script.",
		},
		{
			Code:        "kn",
			Name:        "Kannada",
			NativeName:  "ಕನ್ನಡ",
			Script:      "Kannada",
			ASRLocale:   "kn-IN",
			TTSLocale:   "kn-IN",
			OpenAIVoice: "shimmer",
			PromptHint:  "Reply in Kannada script.",
		},
		{
			Code:        "ml",
			Name:        "Malayalam",
			NativeName:  "മലയാളം",
			Script:      "Malayalam",
			ASRLocale:   "ml-IN",
			TTSLocale:   "ml-IN",
			OpenAIVoice: "shimmer",
			PromptHint:  "Reply in Malayalam script.",
		},
		{
			Code:        "gu",
			Name:        "Gujarati",
			NativeName:  "ગુજરાતી",
			Script:      "Gujarati",
			ASRLocale:   "gu-IN",
			TTSLocale:   "gu-IN",
			OpenAIVoice: "alloy",
			PromptHint:  "Reply in Gujarati script.",
		},
		{
			Code:        "pa",
			Name:        "Punjabi",
			NativeName:  "ਪੰਜਾਬੀ",
			Script:      "Gurmukhi",
			ASRLocale:   "pa-IN",
			TTSLocale:   "pa-IN",
			OpenAIVoice: "alloy",
			PromptHint:  "Reply in Punjabi using Gurmukhi script.",
		},
	}
}
