package speech

import "time"

// ASRResponse 语音识别响应
type ASRResponse struct {
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	Language   string    `json:"language,omitempty"`
	Confidence float64   `json:"confidence"`
	Duration   int64     `json:"duration"` // milliseconds
	Provider   string    `json:"provider,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID string    `json:"sessionId"`
	AudioData []byte    `json:"-"`
	Duration  int64     `json:"duration"` // milliseconds
	Format    string    `json:"format"`
	Provider  string    `json:"provider,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transcript is a transcription surfaced to the caller. NeedsConfirmation is
// set when confidence fell below the configured floor.
type Transcript struct {
	Text              string  `json:"text"`
	Language          string  `json:"language,omitempty"`
	Confidence        float64 `json:"confidence"`
	NeedsConfirmation bool    `json:"needsConfirmation"`
	Provider          string  `json:"provider,omitempty"`
}
