package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/ai"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

func TestRAGTranscriberPostsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("missing audio field: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "RIFF....WAVE" || !strings.HasSuffix(header.Filename, ".wav") {
			t.Errorf("unexpected upload %q (%s)", data, header.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  namaste  ", "language": "hi"})
	}))
	defer srv.Close()

	p := NewRAGTranscriber(srv.URL+"/", srv.Client())
	resp, err := p.Invoke(context.Background(), &speechmodel.ASRRequest{AudioData: []byte("RIFF....WAVE")})
	if err != nil {
		t.Fatalf("Invoke err: %v", err)
	}
	if resp.Text != "namaste" || resp.Language != "hi" || resp.Provider != "rag" {
		t.Fatalf("unexpected response %+v", resp)
	}
	// the service omits confidence when its engine has none
	if resp.Confidence != ragDefaultConfidence {
		t.Fatalf("confidence = %v, want %v", resp.Confidence, ragDefaultConfidence)
	}
}

func TestRAGTranscriberReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRAGTranscriber(srv.URL, srv.Client()).Invoke(context.Background(), &speechmodel.ASRRequest{AudioData: []byte{1, 2}})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}

	if _, err := NewRAGTranscriber(srv.URL, nil).Invoke(context.Background(), &speechmodel.ASRRequest{}); !errors.Is(err, audio.ErrEmpty) {
		t.Fatalf("expected audio.ErrEmpty, got %v", err)
	}
}

func TestOpenAITTSReturnsAudio(t *testing.T) {
	var body struct {
		Model string `json:"model"`
		Input string `json:"input"`
		Voice string `json:"voice"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
	}))
	defer srv.Close()

	tts := NewOpenAITTS(ai.NewOpenAIClient("test-key", srv.URL), "gpt-4o-mini-tts", "alloy")
	resp, err := tts.Invoke(context.Background(), &speechmodel.TTSRequest{
		Text:   "Hello.",
		Voice:  "en_female_amy_jupiter_bigtts",
		Voices: map[string]string{"openai": "nova"},
	})
	if err != nil {
		t.Fatalf("Invoke err: %v", err)
	}
	if len(resp.AudioData) != 4 || resp.Format != "mp3" || resp.Provider != "openai" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if body.Voice != "nova" || body.Input != "Hello." || body.Model != "gpt-4o-mini-tts" {
		t.Fatalf("unexpected request body %+v", body)
	}
}

func TestOpenAITTSUnknownVoiceUsesDefault(t *testing.T) {
	var voice string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Voice string `json:"voice"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		voice = body.Voice
		_, _ = w.Write([]byte{0xFF, 0xFB})
	}))
	defer srv.Close()

	tts := NewOpenAITTS(ai.NewOpenAIClient("test-key", srv.URL), "tts-1", "shimmer")
	if _, err := tts.Invoke(context.Background(), &speechmodel.TTSRequest{Text: "Hi.", Voice: "zh_female_vv_uranus_bigtts"}); err != nil {
		t.Fatalf("Invoke err: %v", err)
	}
	if voice != "shimmer" {
		t.Fatalf("voice = %q, want shimmer", voice)
	}
}

func TestOpenAIASRUploadsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("language"); got != "hi" {
			t.Errorf("language = %q", got)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"EMI kya hai"}`))
	}))
	defer srv.Close()

	asr := NewOpenAIASR(ai.NewOpenAIClient("test-key", srv.URL), "whisper-1")
	resp, err := asr.Invoke(context.Background(), &speechmodel.ASRRequest{AudioData: []byte("RIFF....WAVE"), Language: "hi-IN"})
	if err != nil {
		t.Fatalf("Invoke err: %v", err)
	}
	if resp.Text != "EMI kya hai" || resp.Language != "hi" || resp.Provider != "openai" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
