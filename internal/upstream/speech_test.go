package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSpeechClientSynthesize(t *testing.T) {
	audio := []byte{0xFF, 0xF3, 0x01, 0x02}
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			t.Errorf("path = %q, want audio/speech suffix", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", MIMEType)
		_, _ = w.Write(audio)
	}))
	defer ts.Close()

	client := NewSpeechClient(Config{APIKey: "test-key", BaseURL: ts.URL}, "tts-1", "alloy", 5*time.Second)
	got, err := client.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Fatalf("audio = %v, want %v", got, audio)
	}
	if gotBody["model"] != "tts-1" {
		t.Fatalf("request model = %v, want %q", gotBody["model"], "tts-1")
	}
	if gotBody["voice"] != "alloy" {
		t.Fatalf("request voice = %v, want %q", gotBody["voice"], "alloy")
	}
	if gotBody["input"] != "hello" {
		t.Fatalf("request input = %v, want %q", gotBody["input"], "hello")
	}
	if gotBody["response_format"] != "mp3" {
		t.Fatalf("request response_format = %v, want %q", gotBody["response_format"], "mp3")
	}
}

func TestSpeechClientTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	client := NewSpeechClient(Config{APIKey: "test-key", BaseURL: ts.URL}, "tts-1", "alloy", 30*time.Millisecond)
	_, err := client.Synthesize(context.Background(), "hello")

	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("Synthesize() error = %v, want *Error", err)
	}
	if uerr.Service != ServiceSpeech || uerr.Kind != KindTimeout {
		t.Fatalf("error = %+v, want tts timeout", uerr)
	}
}

func TestSpeechClientUpstreamStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer ts.Close()

	client := NewSpeechClient(Config{APIKey: "test-key", BaseURL: ts.URL}, "tts-1", "alloy", 5*time.Second)
	_, err := client.Synthesize(context.Background(), "hello")

	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("Synthesize() error = %v, want *Error", err)
	}
	if uerr.Kind != KindStatus || uerr.Status != http.StatusTooManyRequests {
		t.Fatalf("error = %+v, want status 429", uerr)
	}
}

func TestSpeechClientEmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", MIMEType)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSpeechClient(Config{APIKey: "test-key", BaseURL: ts.URL}, "tts-1", "alloy", 5*time.Second)
	_, err := client.Synthesize(context.Background(), "hello")

	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("Synthesize() error = %v, want *Error", err)
	}
	if uerr.Kind != KindMalformed {
		t.Fatalf("kind = %q, want %q", uerr.Kind, KindMalformed)
	}
}
