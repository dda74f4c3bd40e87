package repo

import "context"

// TranscriberRepo is the speech-to-text service
type TranscriberRepo interface {
	// Transcribe converts audio to text; speedHint describes how fast the speaker talks
	Transcribe(ctx context.Context, filename string, audio []byte, speedHint string) (string, error)
}

// SpeechRepo is the text-to-speech service
type SpeechRepo interface {
	// Synthesize converts text to audio, returning the bytes and a file name
	Synthesize(ctx context.Context, text, voice string) ([]byte, string, error)
}

// Document is fetched reference text
type Document struct {
	Title     string
	Text      string
	SourceURL string
}

// DocumentRepo fetches external reference documents
type DocumentRepo interface {
	// Fetch gets a page and returns its plain text
	Fetch(ctx context.Context, url string) (*Document, error)

	// FetchRandom gets a random reference document
	FetchRandom(ctx context.Context) (*Document, error)
}
