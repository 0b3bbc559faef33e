// Command speakcli is a manual test client: it connects to a running
// voicebridge instance, sends one text frame and reports what comes back.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicebridge/internal/protocol"
)

type options struct {
	url     string
	text    string
	out     string
	timeout time.Duration
}

func parseFlags() (options, error) {
	var opts options
	flag.StringVar(&opts.url, "url", "ws://127.0.0.1:8000/ws", "websocket URL of the service")
	flag.StringVar(&opts.text, "text", "", "input text to synthesize (required)")
	flag.StringVar(&opts.out, "out", "", "optional file to write the mp3 payload to")
	flag.DurationVar(&opts.timeout, "timeout", 60*time.Second, "how long to wait for the audio frame")
	flag.Parse()

	if opts.text == "" {
		return opts, fmt.Errorf("-text is required")
	}
	return opts, nil
}

func run(opts options) error {
	start := time.Now()

	conn, _, err := websocket.DefaultDialer.Dial(opts.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.url, err)
	}
	defer conn.Close()

	payload, err := json.Marshal(protocol.MessageIn{Text: opts.text})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	fmt.Printf("sent text payload (%d chars)\n", len(opts.text))

	if err := conn.SetReadDeadline(time.Now().Add(opts.timeout)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}

	if msgType == websocket.TextMessage {
		var frame protocol.ErrorFrame
		if err := json.Unmarshal(data, &frame); err == nil && frame.Error.Code != "" {
			return fmt.Errorf("service error %s: %s", frame.Error.Code, frame.Error.Message)
		}
		return fmt.Errorf("unexpected text frame: %s", data)
	}
	if msgType != websocket.BinaryMessage {
		return fmt.Errorf("unexpected frame type %d", msgType)
	}

	fmt.Printf("received audio payload (%d bytes) in %.2fs\n", len(data), time.Since(start).Seconds())

	if opts.out != "" {
		if err := os.WriteFile(opts.out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.out, err)
		}
		fmt.Printf("audio written to %s\n", opts.out)
	}
	return nil
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
