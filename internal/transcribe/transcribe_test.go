package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/transcribe-service/internal/command"
	"github.com/cuongbtq/transcribe-service/internal/domain"
	"github.com/cuongbtq/transcribe-service/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	requests []EngineRequest
	text     string
	err      error
}

func (r *recordingEngine) Name() string { return "fake" }

func (r *recordingEngine) Transcribe(ctx context.Context, req EngineRequest) (string, error) {
	r.requests = append(r.requests, req)
	return r.text, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{hint: "zh-Hant", want: "zh"},
		{hint: "zh-Hans", want: "zh"},
		{hint: "ZH-HANT", want: "zh"},
		{hint: "zh_TW", want: "zh"},
		{hint: "zh-CN", want: "zh"},
		{hint: "en", want: "en"},
		{hint: "pt-BR", want: "pt-BR"},
		{hint: " ja ", want: "ja"},
		{hint: "", want: ""},
		{hint: "auto", want: ""},
		{hint: "AUTO", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLanguage(tt.hint))
		})
	}
}

func TestAdapter_NormalizesBeforeEngine(t *testing.T) {
	engine := &recordingEngine{text: "ni hao"}
	a := NewAdapter(engine, "tiny", discardLogger())

	text, err := a.Transcribe(context.Background(), Request{
		Audio:    media.NewBorrowedHandle("/seg-0.wav"),
		Language: "zh-Hant",
		Segment:  0,
	})
	require.NoError(t, err)
	assert.Equal(t, "ni hao", text)

	_, err = a.Transcribe(context.Background(), Request{
		Audio:    media.NewBorrowedHandle("/seg-1.wav"),
		Language: "en",
		Model:    "base",
		Segment:  1,
	})
	require.NoError(t, err)

	require.Len(t, engine.requests, 2)
	assert.Equal(t, EngineRequest{AudioPath: "/seg-0.wav", Language: "zh", Model: "tiny"}, engine.requests[0])
	assert.Equal(t, EngineRequest{AudioPath: "/seg-1.wav", Language: "en", Model: "base"}, engine.requests[1])
}

func TestAdapter_WrapsEngineFailure(t *testing.T) {
	cause := errors.New("model crashed")
	engine := &recordingEngine{err: cause}
	a := NewAdapter(engine, "tiny", discardLogger())

	_, err := a.Transcribe(context.Background(), Request{Audio: media.NewBorrowedHandle("/seg.wav"), Segment: 3})

	var trErr *domain.TranscriptionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, 3, trErr.Segment)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, engine.requests, 1, "adapter must not retry")
}

func TestAdapter_MissingAudio(t *testing.T) {
	a := NewAdapter(&recordingEngine{}, "tiny", discardLogger())

	_, err := a.Transcribe(context.Background(), Request{Segment: -1})
	var trErr *domain.TranscriptionError
	require.ErrorAs(t, err, &trErr)
}

func TestOpenAIEngine_Transcribe(t *testing.T) {
	var gotModel, gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  hello world \n"})
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "seg.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF"), 0o644))

	engine, err := NewOpenAIEngine("sk-test", srv.URL+"/v1")
	require.NoError(t, err)

	text, err := engine.Transcribe(context.Background(), EngineRequest{AudioPath: audioPath, Language: "zh"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "zh", gotLanguage)
}

func TestOpenAIEngine_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEngine(" ", "")
	require.Error(t, err)
}

type whisperRunner struct {
	args []string
	err  error
}

func (w *whisperRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	w.args = args
	if w.err != nil {
		return command.Result{}, w.err
	}
	outBase := args[len(args)-1]
	for i, a := range args {
		if a == "-of" {
			outBase = args[i+1]
		}
	}
	if err := os.WriteFile(outBase+".txt", []byte(" transcribed text \n"), 0o644); err != nil {
		return command.Result{}, err
	}
	return command.Result{}, nil
}

func TestWhisperCLIEngine_Transcribe(t *testing.T) {
	runner := &whisperRunner{}
	workDir := t.TempDir()
	e := NewWhisperCLIEngine("", "/models", workDir, runner)

	text, err := e.Transcribe(context.Background(), EngineRequest{AudioPath: "/seg.wav", Language: "zh", Model: "tiny"})
	require.NoError(t, err)
	assert.Equal(t, "transcribed text", text)
	assert.Equal(t, "/models/ggml-tiny.bin", runner.args[1])
	assert.Equal(t, []string{"-l", "zh"}, runner.args[len(runner.args)-2:])

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary output dir must be removed")
}

func TestWhisperCLIEngine_AutoLanguageOmitsFlag(t *testing.T) {
	runner := &whisperRunner{}
	e := NewWhisperCLIEngine("whisper-cli", "/models", t.TempDir(), runner)

	_, err := e.Transcribe(context.Background(), EngineRequest{AudioPath: "/seg.wav", Model: "base.en"})
	require.NoError(t, err)
	assert.NotContains(t, runner.args, "-l")
	assert.Equal(t, "/models/ggml-base.en.bin", runner.args[1])
}

func TestWhisperCLIEngine_ResolveModel(t *testing.T) {
	e := NewWhisperCLIEngine("", "/models", "", nil)

	tests := []struct {
		model   string
		want    string
		wantErr bool
	}{
		{model: "tiny", want: "/models/ggml-tiny.bin"},
		{model: "large-v3", want: "/models/ggml-large-v3.bin"},
		{model: "/opt/models/custom.gguf", want: "/opt/models/custom.gguf"},
		{model: "", wantErr: true},
		{model: "..", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := e.resolveModel(tt.model)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWhisperCLIEngine_CommandFailure(t *testing.T) {
	e := NewWhisperCLIEngine("", "/models", t.TempDir(), &whisperRunner{err: errors.New("exit status 1")})

	_, err := e.Transcribe(context.Background(), EngineRequest{AudioPath: "/seg.wav", Model: "tiny"})
	require.Error(t, err)
}
