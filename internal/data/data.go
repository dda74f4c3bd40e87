package data

import (
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

// Options selects the backends behind the repositories
type Options struct {
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	TranscriptionModel string
	SpeechModel        string
	// DBPath is the SQLite file for snapshots; empty disables persistence
	DBPath            string
	RandomDocumentURL string
}

// Repositories contains all platform-independent repositories
type Repositories struct {
	Generator   repo.GeneratorRepo
	Transcriber repo.TranscriberRepo
	Speech      repo.SpeechRepo
	Documents   repo.DocumentRepo
	Snapshots   repo.SnapshotRepo // nil when persistence is disabled
}

// NewRepositories creates all repositories
func NewRepositories(opts Options) (*Repositories, error) {
	var snapshots repo.SnapshotRepo
	if opts.DBPath != "" {
		var err error
		snapshots, err = NewSnapshotRepo(opts.DBPath)
		if err != nil {
			return nil, err
		}
	}

	// Generation, transcription and speech share one OpenAI client
	client := NewOpenAIClient(opts.OpenAIAPIKey, opts.OpenAIBaseURL)
	return &Repositories{
		Generator:   NewGeneratorRepo(client),
		Transcriber: NewTranscriberRepo(client, opts.TranscriptionModel),
		Speech:      NewSpeechRepo(client, opts.SpeechModel),
		Documents:   NewDocumentRepo(opts.RandomDocumentURL),
		Snapshots:   snapshots,
	}, nil
}

// Close releases the snapshot database
func (r *Repositories) Close() error {
	if r.Snapshots == nil {
		return nil
	}
	return r.Snapshots.Close()
}
