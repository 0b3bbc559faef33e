package app

// Build identity. Version is overridden at link time:
//
//	go build -ldflags "-X github.com/antoniostano/voicebridge/internal/app.Version=v1.2.3"
var (
	Name    = "voicebridge"
	Version = "dev"
)
