package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

// 16kHz, 16bit, mono, 200ms = 6400 bytes
const asrChunkSize = 6400

// VolcengineASR 火山引擎大模型流式输入识别。
type VolcengineASR struct {
	config *speechmodel.SpeechConfig
	dialer *websocket.Dialer
	url    string

	// 包间隔，模拟实时音频流
	chunkInterval time.Duration
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// volcengineASRRequest 按文档格式组织的首包。
type volcengineASRRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

func NewVolcengineASR(config *speechmodel.SpeechConfig) *VolcengineASR {
	return &VolcengineASR{
		config:        config,
		dialer:        newDialer(),
		url:           volcengineURL(config, volcengineASRPath),
		chunkInterval: 200 * time.Millisecond,
	}
}

func (c *VolcengineASR) Name() string { return "volcengine" }

// Invoke streams req.AudioData to the recognizer and waits for the final result.
func (c *VolcengineASR) Invoke(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if len(req.AudioData) == 0 {
		return nil, audio.ErrEmpty
	}

	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	resourceID := "volc.bigasr.sauc.duration" // 小时版
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent" // 并发版
	}
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[asr] connected with logid: %s", logid)
		}
	}

	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := gzipBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, fullClientFrame(compressed, compressGzip).encode()); err != nil {
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// 读操作阻塞时依靠关闭连接返回
	stop := context.AfterFunc(sendCtx, func() { conn.Close() })
	defer stop()

	// 并发发送与接收，服务端提前报错时可以及时停止发送
	sendErrCh := make(chan error, 1)
	go func() {
		err := c.sendAudio(sendCtx, conn, req.AudioData)
		if err != nil {
			cancel()
		}
		sendErrCh <- err
	}()

	result, recvErr := c.receive(conn, req)
	cancel()
	sendErr := <-sendErrCh

	if recvErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sendErr != nil && !errors.Is(sendErr, context.Canceled) {
			return nil, fmt.Errorf("failed to send audio data: %w", sendErr)
		}
		return nil, recvErr
	}
	result.RequestID = connectID
	return result, nil
}

func (c *VolcengineASR) buildRequest(req *speechmodel.ASRRequest) *volcengineASRRequest {
	out := &volcengineASRRequest{}
	out.User.UID = req.SessionID

	out.Audio.Format = audio.Normalize(req.Format)
	if out.Audio.Format == "" {
		out.Audio.Format = audio.FormatWAV
	}
	out.Audio.Language = strings.TrimSpace(req.Language)
	if out.Audio.Language == "" {
		out.Audio.Language = c.config.ASRLanguage
	}
	out.Audio.Codec = "raw"
	out.Audio.Rate = 16000
	out.Audio.Bits = 16
	out.Audio.Channel = 1

	out.Request.ModelName = "bigmodel"
	if c.config.ASRModel != "" {
		out.Request.ModelName = c.config.ASRModel
	}
	out.Request.EnableITN = true
	out.Request.EnablePunc = true
	out.Request.ShowUtterances = true
	out.Request.ResultType = "full"
	out.Request.EndWindowSize = 800
	return out
}

func (c *VolcengineASR) sendAudio(ctx context.Context, conn *websocket.Conn, data []byte) error {
	// 首包占用序号1，音频从2开始
	sequence := int32(2)

	for i := 0; i < len(data); i += asrChunkSize {
		end := min(i+asrChunkSize, len(data))
		last := end >= len(data)

		compressed, err := gzipBytes(data[i:end])
		if err != nil {
			return fmt.Errorf("failed to compress audio chunk: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audioFrame(compressed, sequence, last, compressGzip).encode()); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++

		if last {
			break
		}
		if c.chunkInterval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.chunkInterval):
		}
	}
	return nil
}

func (c *VolcengineASR) receive(conn *websocket.Conn, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	var (
		finalText string
		duration  int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}

		msg, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}
		body, err := msg.body()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
		}

		switch msg.kind {
		case frameError:
			return nil, fmt.Errorf("ASR error %d: %s", msg.errorCode, string(body))

		case frameFullServer:
			var serverResp asrServerMessage
			if err := json.Unmarshal(body, &serverResp); err != nil {
				log.Printf("[asr] failed to unmarshal response: %v", err)
				continue
			}
			if serverResp.Code != 0 && serverResp.Code != 20000000 {
				return nil, fmt.Errorf("ASR API error %d: %s", serverResp.Code, serverResp.Message)
			}

			text := serverResp.Result.Text
			if text == "" {
				text = joinUtterances(serverResp.Result.Utterances)
			}
			if text != "" {
				finalText = text
			}
			if serverResp.AudioInfo.Duration > 0 {
				duration = serverResp.AudioInfo.Duration
			}

			if msg.isLast() || serverResp.Sequence < 0 {
				if finalText == "" {
					log.Printf("[asr] empty transcript for session %s", req.SessionID)
				}
				return &speechmodel.ASRResponse{
					SessionID:  req.SessionID,
					Text:       finalText,
					Language:   req.Language,
					Confidence: estimateASRConfidence(finalText),
					Duration:   duration,
					Provider:   c.Name(),
					CreatedAt:  time.Now(),
				}, nil
			}

		default:
			// 音频ACK等其他类型忽略
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// 服务端不返回置信度，非空结果按固定值估计
func estimateASRConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}
