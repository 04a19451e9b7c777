package speech

// ASRRequest 语音识别请求。AudioData is held in memory so every provider in a
// fallback list can read it.
type ASRRequest struct {
	SessionID string `json:"sessionId"`
	AudioData []byte `json:"-"`
	Format    string `json:"format"`   // wav, mp3, webm, ogg, pcm
	Language  string `json:"language"` // hint: en, hi-IN ...
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float32 `json:"speed"`
	Volume    float32 `json:"volume"`
	Format    string  `json:"format"`
	Language  string  `json:"language"`
	// Voices overrides Voice per provider name.
	Voices map[string]string `json:"-"`
}

// VoiceFor returns the voice a given provider should use.
func (r *TTSRequest) VoiceFor(provider string) string {
	if v, ok := r.Voices[provider]; ok && v != "" {
		return v
	}
	return r.Voice
}
