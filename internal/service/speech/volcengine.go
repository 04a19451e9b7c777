package speech

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
)

const (
	volcengineHost    = "wss://openspeech.bytedance.com"
	volcengineTTSPath = "/api/v3/tts/unidirectional/stream"
	volcengineASRPath = "/api/v3/sauc/bigmodel_nostream"
)

var ErrMissingCredentials = errors.New("volcengine speech credentials missing")

// resolveCredentials 返回规范化后的 AppID 与 AccessToken。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", ErrMissingCredentials
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("%w: need AppID and AccessToken", ErrMissingCredentials)
	}
	return appID, token, nil
}

// volcengineURL lets SPEECH_BASE_URL point both clients at another host.
func volcengineURL(cfg *speechmodel.SpeechConfig, path string) string {
	base := volcengineHost
	if cfg != nil && strings.TrimSpace(cfg.BaseURL) != "" {
		base = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}
	return base + path
}

func newDialer() *websocket.Dialer {
	return &websocket.Dialer{HandshakeTimeout: 30 * time.Second}
}
