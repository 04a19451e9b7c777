// Command speechtester exercises the segmentation, synthesis and
// transcription chains against the providers configured in the environment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shankh-ai/shankh/backend/internal/analysis/sanitize"
	"github.com/shankh-ai/shankh/backend/internal/analysis/segment"
	"github.com/shankh-ai/shankh/backend/internal/app"
	"github.com/shankh-ai/shankh/backend/internal/config"
	"github.com/shankh-ai/shankh/backend/internal/model/language"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/ai"
	"github.com/shankh-ai/shankh/backend/internal/service/speech"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

var (
	timeout  time.Duration
	langCode string
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "speechtester",
		Short:         "Exercise speech segmentation, synthesis and transcription",
		SilenceUsage:  true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 90*time.Second, "overall request timeout")
	root.PersistentFlags().StringVar(&langCode, "lang", "", "language code, e.g. en, hi, ta")

	root.AddCommand(newSegmentCmd(), newSynthesizeCmd(), newTranscribeCmd())
	return root
}

func newSegmentCmd() *cobra.Command {
	var (
		limit int
		raw   bool
	)
	cmd := &cobra.Command{
		Use:   "segment [text|@file]",
		Short: "Clean and split reply text the way synthesis does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args[0])
			if err != nil {
				return err
			}
			if !raw {
				text = sanitize.Clean(text)
			}
			for i, seg := range segment.Split(text, limit) {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] (%d chars) %s\n", i, len([]rune(seg)), seg)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 900, "maximum characters per segment")
	cmd.Flags().BoolVar(&raw, "raw", false, "skip markup cleaning")
	return cmd
}

func newSynthesizeCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "synthesize [text|@file]",
		Short: "Synthesize text through the configured provider chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("配置加载失败: %w", err)
			}
			text, err := readText(args[0])
			if err != nil {
				return err
			}

			client := ai.NewOpenAIClient(cfg.Generation.OpenAI.APIKey, cfg.Generation.OpenAI.BaseURL)
			router := speech.NewTTSRouter(cfg.Turn.ProviderTimeout, app.SynthesisProviders(cfg, client)...)
			if router.Len() == 0 {
				return fmt.Errorf("no synthesis providers configured")
			}

			saver := &fileSaver{path: outPath}
			synth := speech.NewSynthesizer(router, saver, speech.SynthesizerOptions{
				MaxSegment: cfg.Speech.MaxSegmentChars,
				Format:     cfg.Speech.Format,
				Speed:      cfg.Speech.TTSSpeed,
				Volume:     cfg.Speech.TTSVolume,
			})

			profile := language.NewMemoryStore(language.Seed()).Resolve(langCode)
			log.Printf("开始进行 TTS 测试: providers=%v language=%s chars=%d", router.Names(), profile.Code, len([]rune(text)))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			art, err := synth.Synthesize(ctx, sanitize.Clean(text), profile)
			if err != nil {
				return fmt.Errorf("TTS 调用失败: %w", err)
			}
			log.Printf("TTS 合成成功: 输出文件 %s, segments=%d bytes=%d", saver.path, art.Segments, art.Size)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default tts-output-<unix>.<format>)")
	return cmd
}

func newTranscribeCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file through the configured provider chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("配置加载失败: %w", err)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("打开音频文件失败: %w", err)
			}
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(args[0])), ".")
			}

			client := ai.NewOpenAIClient(cfg.Generation.OpenAI.APIKey, cfg.Generation.OpenAI.BaseURL)
			router := speech.NewASRRouter(cfg.Turn.ProviderTimeout, app.TranscriptionProviders(cfg, client)...)
			if router.Len() == 0 {
				return fmt.Errorf("no transcription providers configured")
			}
			transcriber := speech.NewTranscriber(router, cfg.Speech.MinConfidence)

			locale := ""
			if langCode != "" {
				locale = language.NewMemoryStore(language.Seed()).Resolve(langCode).ASRLocale
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			log.Printf("开始进行 ASR 测试: providers=%v format=%s language=%s", router.Names(), format, locale)
			transcript, err := transcriber.Transcribe(ctx, &speechmodel.ASRRequest{
				SessionID: "speechtester-" + uuid.NewString(),
				AudioData: data,
				Format:    format,
				Language:  locale,
			})
			if err != nil {
				return fmt.Errorf("ASR 调用失败: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(transcript)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "input audio format (default from file extension)")
	return cmd
}

// readText returns arg itself, or the contents of the file when arg starts with "@".
func readText(arg string) (string, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}
	return arg, nil
}

// fileSaver writes the assembled audio to a local file.
type fileSaver struct {
	path string
}

func (f *fileSaver) Save(_ context.Context, data []byte, format string, segments int) (*speechmodel.Artifact, error) {
	if err := audio.Verify(data, format); err != nil {
		return nil, err
	}
	if f.path == "" {
		ext := format
		if ext == audio.FormatOGG {
			ext = "ogg"
		}
		f.path = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), ext)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return nil, fmt.Errorf("写入音频文件失败: %w", err)
	}
	now := time.Now().UTC()
	return &speechmodel.Artifact{
		Handle:      filepath.Base(f.path),
		Format:      format,
		ContentType: audio.ContentType(format),
		Size:        int64(len(data)),
		Segments:    segments,
		CreatedAt:   now,
		ExpiresAt:   now,
	}, nil
}
