package openai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/oratioapp/oratio/pkg/provider/live"
	"github.com/oratioapp/oratio/pkg/provider/live/openai"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startRealtimeServer launches a test WebSocket server. The handler receives
// the accepted conn. The server is automatically closed when the test finishes.
func startRealtimeServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// ── Constructor and capabilities ───────────────────────────────────────────────

func TestNew_DefaultValues(t *testing.T) {
	t.Parallel()
	p := openai.New("my-key")
	if p == nil {
		t.Fatal("New returned nil")
	}
}

func TestCapabilities_NonEmpty(t *testing.T) {
	t.Parallel()
	p := openai.New("key")
	caps := p.Capabilities()
	if caps.MaxSessionDuration == 0 {
		t.Error("MaxSessionDuration should be non-zero")
	}
	if len(caps.Voices) == 0 {
		t.Error("Voices should be non-empty")
	}
}

// ── Connect ────────────────────────────────────────────────────────────────────

func TestConnect_SendsSessionUpdate(t *testing.T) {
	t.Parallel()

	type sessionUpdateMsg struct {
		Type    string `json:"type"`
		Session struct {
			Voice                   string `json:"voice"`
			Instructions            string `json:"instructions"`
			InputAudioFormat        string `json:"input_audio_format"`
			OutputAudioFormat       string `json:"output_audio_format"`
			InputAudioTranscription struct {
				Model string `json:"model"`
			} `json:"input_audio_transcription"`
		} `json:"session"`
	}

	received := make(chan sessionUpdateMsg, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg sessionUpdateMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	cfg := live.SessionConfig{
		Voice:        "alloy",
		Instructions: "You are a senior backend interviewer.",
	}
	handle, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case msg := <-received:
		if msg.Type != "session.update" {
			t.Errorf("type = %q; want session.update", msg.Type)
		}
		if msg.Session.Voice != "alloy" {
			t.Errorf("voice = %q; want alloy", msg.Session.Voice)
		}
		if msg.Session.Instructions != "You are a senior backend interviewer." {
			t.Errorf("instructions = %q", msg.Session.Instructions)
		}
		if msg.Session.InputAudioFormat != "pcm16" {
			t.Errorf("input_audio_format = %q; want pcm16", msg.Session.InputAudioFormat)
		}
		if msg.Session.OutputAudioFormat != "pcm16" {
			t.Errorf("output_audio_format = %q; want pcm16", msg.Session.OutputAudioFormat)
		}
		if msg.Session.InputAudioTranscription.Model == "" {
			t.Error("candidate speech transcription should be enabled")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestConnect_SendsAuthHeaders(t *testing.T) {
	t.Parallel()

	authHeader := make(chan string, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("my-secret-token", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case auth := <-authHeader:
		if auth != "Bearer my-secret-token" {
			t.Errorf("Authorization = %q; want Bearer my-secret-token", auth)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestConnect_ModelInURL(t *testing.T) {
	t.Parallel()

	modelInURL := make(chan string, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, r *http.Request) {
		modelInURL <- r.URL.Query().Get("model")
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithModel("gpt-4o-mini-realtime"), openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case m := <-modelInURL:
		if m != "gpt-4o-mini-realtime" {
			t.Errorf("model in URL = %q; want gpt-4o-mini-realtime", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestConnect_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Connect(ctx, live.SessionConfig{}); err == nil {
		t.Fatal("Connect with cancelled context should return an error")
	}
}

// ── SendAudio ──────────────────────────────────────────────────────────────────

func TestSendAudio_ForwardsFrameVerbatim(t *testing.T) {
	t.Parallel()

	type appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}

	audioMsg := make(chan appendMsg, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		var msg appendMsg
		readJSON(t, conn, &msg)
		audioMsg <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	// The capture pipeline hands over frames already base64-encoded; the
	// session must forward the string untouched.
	wantFrame := base64.StdEncoding.EncodeToString([]byte{0x10, 0x20, 0x30, 0x40})
	if err := handle.SendAudio(wantFrame); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-audioMsg:
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("type = %q; want input_audio_buffer.append", msg.Type)
		}
		if msg.Audio != wantFrame {
			t.Errorf("audio = %q; want %q", msg.Audio, wantFrame)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio append message")
	}
}

func TestSendAudio_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = handle.Close()

	if err := handle.SendAudio("QUJD"); err == nil {
		t.Fatal("SendAudio after Close should return an error")
	}
}

// ── Audio ──────────────────────────────────────────────────────────────────────

func TestAudio_DeliversFrames(t *testing.T) {
	t.Parallel()

	wantFrame := base64.StdEncoding.EncodeToString([]byte{0xDE, 0xAD, 0xBE, 0xEF})

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"type":  "response.audio.delta",
			"delta": wantFrame,
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case frame, ok := <-handle.Audio():
		if !ok {
			t.Fatal("Audio channel closed unexpectedly")
		}
		if frame != wantFrame {
			t.Errorf("audio frame = %q; want %q", frame, wantFrame)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio frame")
	}
}

// ── Transcripts ────────────────────────────────────────────────────────────────

func TestTranscripts_InterviewerPartialsThenFinal(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "Tell me "})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "about yourself."})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.done"})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	var got []live.Utterance
	deadline := time.After(3 * time.Second)
	for len(got) < 3 {
		select {
		case u, ok := <-handle.Transcripts():
			if !ok {
				t.Fatalf("Transcripts closed after %d utterances", len(got))
			}
			got = append(got, u)
		case <-deadline:
			t.Fatalf("timeout after %d utterances", len(got))
		}
	}

	// Partials grow monotonically, final carries the full turn.
	if got[0].Final || got[0].Text != "Tell me " {
		t.Errorf("utterance[0] = %+v; want partial %q", got[0], "Tell me ")
	}
	if got[1].Final || got[1].Text != "Tell me about yourself." {
		t.Errorf("utterance[1] = %+v; want partial full text", got[1])
	}
	if !got[2].Final || got[2].Text != "Tell me about yourself." {
		t.Errorf("utterance[2] = %+v; want final full text", got[2])
	}
	for i, u := range got {
		if u.Speaker != live.SpeakerInterviewer {
			t.Errorf("utterance[%d].Speaker = %q; want interviewer", i, u.Speaker)
		}
	}
}

func TestTranscripts_CandidateSpeech(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"type":       "conversation.item.input_audio_transcription.completed",
			"transcript": "I led the migration to Kubernetes.",
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case u, ok := <-handle.Transcripts():
		if !ok {
			t.Fatal("Transcripts channel closed unexpectedly")
		}
		if u.Speaker != live.SpeakerCandidate {
			t.Errorf("speaker = %q; want candidate", u.Speaker)
		}
		if !u.Final {
			t.Error("candidate speech should arrive final")
		}
		if u.Text != "I led the migration to Kubernetes." {
			t.Errorf("text = %q", u.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for candidate transcription")
	}
}

// ── OnError ────────────────────────────────────────────────────────────────────

func TestOnError_InvokesHandler(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "invalid_request_error",
				"code":    "audio_unintelligible",
				"message": "Could not understand audio.",
			},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	errCh := make(chan error, 1)
	handle.OnError(func(e error) {
		errCh <- e
	})

	select {
	case gotErr := <-errCh:
		if gotErr == nil {
			t.Fatal("OnError handler called with nil error")
		}
		if !strings.Contains(gotErr.Error(), "Could not understand audio") {
			t.Errorf("error = %q; want substring %q", gotErr, "Could not understand audio")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnError handler to be called")
	}
}

func TestOnError_NilHandlerIgnoresError(t *testing.T) {
	t.Parallel()

	errorSent := make(chan struct{})

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "server_error",
				"message": "Transient failure",
			},
		})
		close(errorSent)

		time.Sleep(200 * time.Millisecond)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	// No handler registered, must not panic.
	select {
	case <-errorSent:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
	time.Sleep(50 * time.Millisecond)
}

// ── Interrupt ──────────────────────────────────────────────────────────────────

func TestInterrupt_SendsResponseCancel(t *testing.T) {
	t.Parallel()

	type cancelMsg struct {
		Type string `json:"type"`
	}

	cancelReceived := make(chan cancelMsg, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		var msg cancelMsg
		readJSON(t, conn, &msg)
		cancelReceived <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if err := handle.Interrupt(); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	select {
	case msg := <-cancelReceived:
		if msg.Type != "response.cancel" {
			t.Errorf("type = %q; want response.cancel", msg.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for response.cancel")
	}
}

// ── Close ──────────────────────────────────────────────────────────────────────

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
}

func TestClose_ClosesChannels(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_ = handle.Close()

	select {
	case _, open := <-handle.Audio():
		if open {
			t.Error("Audio channel should be closed after Close()")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Audio channel to close")
	}

	select {
	case _, open := <-handle.Transcripts():
		if open {
			t.Error("Transcripts channel should be closed after Close()")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Transcripts channel to close")
	}
}

// ── Concurrency ────────────────────────────────────────────────────────────────

func TestConcurrentSendAudio_DoesNotRace(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		ctx := context.Background()
		for {
			_, _, err := conn.Read(ctx)
			if err != nil {
				return
			}
		}
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	const goroutines = 8
	const framesPerGoroutine = 16

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range framesPerGoroutine {
				_ = handle.SendAudio("yv66vg==")
			}
		})
	}
	wg.Wait()
}

// ── Err ────────────────────────────────────────────────────────────────────────

func TestErr_NilBeforeError(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if got := handle.Err(); got != nil {
		t.Errorf("Err() = %v; want nil before any error", got)
	}
}

// ── MintToken ──────────────────────────────────────────────────────────────────

func TestMintToken_ReturnsEphemeralCredential(t *testing.T) {
	t.Parallel()

	expires := time.Now().Add(30 * time.Minute).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/realtime/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer my-key" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"client_secret": map[string]any{
				"value":      "ek_test_12345",
				"expires_at": expires,
			},
		})
	}))
	t.Cleanup(srv.Close)

	p := openai.New("my-key", openai.WithRESTBaseURL(srv.URL))
	tok, err := p.MintToken(context.Background())
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if tok.Value != "ek_test_12345" {
		t.Errorf("token value = %q; want ek_test_12345", tok.Value)
	}
	if tok.ExpiresAt.Unix() != expires {
		t.Errorf("expires at = %v; want unix %d", tok.ExpiresAt, expires)
	}
}

func TestMintToken_NonOKStatus_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := openai.New("bad-key", openai.WithRESTBaseURL(srv.URL))
	if _, err := p.MintToken(context.Background()); err == nil {
		t.Fatal("MintToken with 401 response should return an error")
	}
}

func TestMintToken_MissingSecret_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	p := openai.New("key", openai.WithRESTBaseURL(srv.URL))
	if _, err := p.MintToken(context.Background()); err == nil {
		t.Fatal("MintToken without client_secret should return an error")
	}
}
