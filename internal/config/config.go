package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Generation GenerationConfig
	Speech     SpeechConfig
	Retrieval  RetrievalConfig
	Market     MarketConfig
	Artifacts  ArtifactConfig
	Turn       TurnConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	generation, err := loadGenerationConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	retrieval, err := loadRetrievalConfig()
	if err != nil {
		return nil, err
	}

	market, err := loadMarketConfig(retrieval.ServiceURL)
	if err != nil {
		return nil, err
	}

	artifacts, err := loadArtifactConfig()
	if err != nil {
		return nil, err
	}

	turn, err := loadTurnConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Session:    session,
		Generation: generation,
		Speech:     speech,
		Retrieval:  retrieval,
		Market:     market,
		Artifacts:  artifacts,
		Turn:       turn,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// SessionConfig 描述会话存储。
type SessionConfig struct {
	Backend       string // memory | badger
	Dir           string
	MaxTurns      int
	TTL           time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("SESSION_BACKEND", "memory"))
	if backend != "memory" && backend != "badger" {
		return SessionConfig{}, fmt.Errorf("invalid SESSION_BACKEND value %q", backend)
	}

	maxTurns, err := parseIntEnv("SESSION_MAX_TURNS", 20)
	if err != nil {
		return SessionConfig{}, err
	}
	if maxTurns < 2 {
		return SessionConfig{}, fmt.Errorf("SESSION_MAX_TURNS must be at least 2, got %d", maxTurns)
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		Backend:       backend,
		Dir:           getEnvOrDefault("SESSION_DIR", "data/sessions"),
		MaxTurns:      maxTurns,
		TTL:           ttl,
		SweepInterval: sweep,
	}, nil
}

// GenerationConfig 描述文本生成的 provider 列表与各自凭证。
type GenerationConfig struct {
	Providers []string
	Ark       ArkConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
}

// ArkConfig 描述火山方舟大模型相关配置。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// OpenAIConfig 同时服务于 OpenAI 的文本、语音合成与转写。
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	TTSModel string
	TTSVoice string
	ASRModel string
}

// GeminiConfig 描述 Gemini 生成模型。
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// Enabled reports whether an API key is configured.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// Enabled reports whether an API key is configured.
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadGenerationConfig() (GenerationConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return GenerationConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return GenerationConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return GenerationConfig{}, err
	}

	// 兼容旧变量名 Model
	arkModel := getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model")))

	return GenerationConfig{
		Providers: parseListEnv("GENERATION_PROVIDERS", []string{"ark", "openai", "gemini"}),
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       arkModel,
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
		OpenAI: loadOpenAIConfig(),
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
	}, nil
}

func loadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:  strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Model:    getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		TTSModel: getEnvOrDefault("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice: getEnvOrDefault("OPENAI_TTS_VOICE", "alloy"),
		ASRModel: getEnvOrDefault("OPENAI_ASR_MODEL", "whisper-1"),
	}
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	SynthesisProviders     []string
	TranscriptionProviders []string
	MaxSegmentChars        int
	MinConfidence          float64
	Format                 string

	AppID          string
	AccessToken    string
	APIKey         string
	Region         string
	BaseURL        string
	ConcurrentMode bool
	ASRModel       string
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	TTSLanguage    string
	Timeout        int
	Enabled        bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	maxSegment, err := parseIntEnv("SPEECH_MAX_SEGMENT_CHARS", 900)
	if err != nil {
		return SpeechConfig{}, err
	}
	if maxSegment < 50 {
		return SpeechConfig{}, fmt.Errorf("SPEECH_MAX_SEGMENT_CHARS must be at least 50, got %d", maxSegment)
	}

	minConfidence := 0.6
	if override, err := parseOptionalFloatEnv("SPEECH_MIN_CONFIDENCE"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		if *override < 0 || *override > 1 {
			return SpeechConfig{}, fmt.Errorf("SPEECH_MIN_CONFIDENCE must be within [0,1], got %v", *override)
		}
		minConfidence = *override
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		SynthesisProviders:     parseListEnv("SYNTHESIS_PROVIDERS", []string{"volcengine", "openai"}),
		TranscriptionProviders: parseListEnv("TRANSCRIPTION_PROVIDERS", []string{"rag", "volcengine", "openai"}),
		MaxSegmentChars:        maxSegment,
		MinConfidence:          minConfidence,
		Format:                 getEnvOrDefault("SPEECH_FORMAT", "mp3"),
		AppID:                  appID,
		AccessToken:            accessToken,
		APIKey:                 apiKey,
		Region:                 getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
		BaseURL:                getEnvOrDefault("SPEECH_BASE_URL", ""),
		ConcurrentMode:         concurrent,
		ASRModel:               getEnvOrDefault("SPEECH_ASR_MODEL", ""),
		ASRLanguage:            getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		TTSVoice:               getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:               ttsSpeed,
		TTSVolume:              ttsVolume,
		TTSLanguage:            getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:                timeoutSeconds,
		Enabled:                appID != "" && accessToken != "",
	}, nil
}

// RetrievalConfig 描述 RAG 检索服务。
type RetrievalConfig struct {
	ServiceURL string
	TopK       int
	Threshold  float64
	Timeout    time.Duration
}

func loadRetrievalConfig() (RetrievalConfig, error) {
	topK, err := parseIntEnv("RETRIEVAL_TOP_K", 5)
	if err != nil {
		return RetrievalConfig{}, err
	}
	if topK < 1 || topK > 50 {
		return RetrievalConfig{}, fmt.Errorf("RETRIEVAL_TOP_K must be within [1,50], got %d", topK)
	}

	threshold := 0.3
	if override, err := parseOptionalFloatEnv("RETRIEVAL_THRESHOLD"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil {
		if *override < 0 || *override > 1 {
			return RetrievalConfig{}, fmt.Errorf("RETRIEVAL_THRESHOLD must be within [0,1], got %v", *override)
		}
		threshold = *override
	}

	timeout, err := parseDurationEnv("RETRIEVAL_TIMEOUT", 4*time.Second)
	if err != nil {
		return RetrievalConfig{}, err
	}

	return RetrievalConfig{
		ServiceURL: strings.TrimRight(getEnvOrDefault("RAG_SERVICE_URL", "http://localhost:8000"), "/"),
		TopK:       topK,
		Threshold:  threshold,
		Timeout:    timeout,
	}, nil
}

// MarketConfig 描述行情查询。行情接口与检索服务同在 RAG 服务上。
type MarketConfig struct {
	Enabled    bool
	ServiceURL string
	Timeout    time.Duration
	MaxSymbols int
}

func loadMarketConfig(defaultURL string) (MarketConfig, error) {
	enabled, err := parseBoolEnv("MARKET_ENABLED", true)
	if err != nil {
		return MarketConfig{}, err
	}

	timeout, err := parseDurationEnv("MARKET_TIMEOUT", 3*time.Second)
	if err != nil {
		return MarketConfig{}, err
	}

	maxSymbols, err := parseIntEnv("MARKET_MAX_SYMBOLS", 5)
	if err != nil {
		return MarketConfig{}, err
	}

	return MarketConfig{
		Enabled:    enabled,
		ServiceURL: strings.TrimRight(getEnvOrDefault("MARKET_SERVICE_URL", defaultURL), "/"),
		Timeout:    timeout,
		MaxSymbols: maxSymbols,
	}, nil
}

// ArtifactConfig 描述合成音频的存放位置与保留时长。
type ArtifactConfig struct {
	Backend      string // local | s3
	Dir          string
	S3Bucket     string
	S3Prefix     string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	Retention    time.Duration
	ReapInterval time.Duration
}

func loadArtifactConfig() (ArtifactConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("ARTIFACT_BACKEND", "local"))
	if backend != "local" && backend != "s3" {
		return ArtifactConfig{}, fmt.Errorf("invalid ARTIFACT_BACKEND value %q", backend)
	}

	retention, err := parseDurationEnv("ARTIFACT_RETENTION", 15*time.Minute)
	if err != nil {
		return ArtifactConfig{}, err
	}

	reap, err := parseDurationEnv("ARTIFACT_REAP_INTERVAL", time.Minute)
	if err != nil {
		return ArtifactConfig{}, err
	}

	cfg := ArtifactConfig{
		Backend:      backend,
		Dir:          getEnvOrDefault("ARTIFACT_DIR", "data/audio"),
		S3Bucket:     strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")),
		S3Prefix:     strings.Trim(strings.TrimSpace(os.Getenv("ARTIFACT_S3_PREFIX")), "/"),
		S3Region:     getEnvOrDefault("ARTIFACT_S3_REGION", "ap-south-1"),
		S3Endpoint:   strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT")),
		S3AccessKey:  strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")),
		S3SecretKey:  strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")),
		Retention:    retention,
		ReapInterval: reap,
	}

	if cfg.Backend == "s3" && cfg.S3Bucket == "" {
		return ArtifactConfig{}, fmt.Errorf("ARTIFACT_S3_BUCKET is required when ARTIFACT_BACKEND=s3")
	}

	return cfg, nil
}

// TurnConfig 描述单轮对话的超时预算。
type TurnConfig struct {
	Timeout              time.Duration
	GenerationTimeout    time.Duration
	ProviderTimeout      time.Duration
	SynthesisTimeout     time.Duration
	TranscriptionTimeout time.Duration
	HistoryWindow        int
}

func loadTurnConfig() (TurnConfig, error) {
	var (
		cfg TurnConfig
		err error
	)

	if cfg.Timeout, err = parseDurationEnv("TURN_TIMEOUT", 60*time.Second); err != nil {
		return TurnConfig{}, err
	}
	if cfg.GenerationTimeout, err = parseDurationEnv("GENERATION_TIMEOUT", 40*time.Second); err != nil {
		return TurnConfig{}, err
	}
	if cfg.ProviderTimeout, err = parseDurationEnv("PROVIDER_TIMEOUT", 20*time.Second); err != nil {
		return TurnConfig{}, err
	}
	if cfg.SynthesisTimeout, err = parseDurationEnv("SYNTHESIS_TIMEOUT", 25*time.Second); err != nil {
		return TurnConfig{}, err
	}
	if cfg.TranscriptionTimeout, err = parseDurationEnv("TRANSCRIPTION_TIMEOUT", 30*time.Second); err != nil {
		return TurnConfig{}, err
	}
	if cfg.HistoryWindow, err = parseIntEnv("TURN_HISTORY_WINDOW", 10); err != nil {
		return TurnConfig{}, err
	}

	if cfg.GenerationTimeout > cfg.Timeout {
		return TurnConfig{}, fmt.Errorf("GENERATION_TIMEOUT (%s) exceeds TURN_TIMEOUT (%s)", cfg.GenerationTimeout, cfg.Timeout)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

// parseListEnv 解析逗号分隔的列表，保留顺序并去重。
func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		item := strings.ToLower(strings.TrimSpace(part))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
