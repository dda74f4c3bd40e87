package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// Mock implementations

type mockStateStore struct {
	mu     sync.Mutex
	states map[domain.EntityKey]*domain.EntityState
}

func newMockStateStore() *mockStateStore {
	return &mockStateStore{states: make(map[domain.EntityKey]*domain.EntityState)}
}

func (m *mockStateStore) Resolve(key domain.EntityKey) *domain.EntityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[key]; ok {
		return st
	}
	st := domain.NewEntityState(key, time.Now())
	m.states[key] = st
	return st
}

func (m *mockStateStore) Lookup(key domain.EntityKey) (*domain.EntityState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	return st, ok
}

func (m *mockStateStore) Keys() []domain.EntityKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []domain.EntityKey
	for k := range m.states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

type mockGenerator struct {
	mu       sync.Mutex
	requests []*repo.CompletionRequest
	reply    func(req *repo.CompletionRequest) (string, error)
	called   chan struct{}
}

func newMockGenerator(reply func(req *repo.CompletionRequest) (string, error)) *mockGenerator {
	return &mockGenerator{reply: reply, called: make(chan struct{}, 64)}
}

func (m *mockGenerator) Complete(ctx context.Context, req *repo.CompletionRequest) (*repo.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	defer func() { m.called <- struct{}{} }()

	text, err := m.reply(req)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return &repo.CompletionResponse{}, nil
	}
	return &repo.CompletionResponse{Blocks: []repo.ContentBlock{{Type: repo.BlockText, Text: text}}}, nil
}

func (m *mockGenerator) Requests() []*repo.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*repo.CompletionRequest(nil), m.requests...)
}

func (m *mockGenerator) waitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.called:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for generator call %d", i+1)
		}
	}
}

type sentMessage struct {
	ChannelID string
	Text      string
}

type mockMessenger struct {
	mu        sync.Mutex
	sent      []sentMessage
	audio     []string
	reactions []string
	sendErr   error
	delivered chan struct{}
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{delivered: make(chan struct{}, 64)}
}

func (m *mockMessenger) SendText(ctx context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.delivered <- struct{}{} }()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{ChannelID: channelID, Text: text})
	return nil
}

func (m *mockMessenger) SendAudio(ctx context.Context, channelID, filename string, audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, filename)
	return nil
}

func (m *mockMessenger) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, emoji)
	m.delivered <- struct{}{}
	return nil
}

func (m *mockMessenger) FetchHistory(ctx context.Context, channelID string, limit int) ([]repo.HistoryMessage, error) {
	return nil, nil
}

func (m *mockMessenger) ResolveChannel(ctx context.Context, groupID, name string) (string, error) {
	return "", errors.New("not found")
}

func (m *mockMessenger) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockMessenger) waitDelivered(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.delivered:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for delivery %d", i+1)
		}
	}
}

type mockSpeech struct {
	err error
}

func (m *mockSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return []byte("mp3"), "reply.mp3", nil
}

type testEnv struct {
	store     *mockStateStore
	gen       *mockGenerator
	messenger *mockMessenger
	conv      *ConversationService
	genUC     *usecase.GenerationUsecase
	persist   *usecase.PersistenceUsecase
}

func newTestEnv(reply func(req *repo.CompletionRequest) (string, error)) *testEnv {
	logger := zap.NewNop()
	store := newMockStateStore()
	gen := newMockGenerator(reply)
	messenger := newMockMessenger()
	persist := usecase.NewPersistenceUsecase(store, nil, logger)
	genUC := usecase.NewGenerationUsecase(store, gen, persist, usecase.DefaultPromptSet(), logger)
	genUC.SetRetryPolicy(usecase.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond})
	conv := NewConversationService(store, genUC, persist, messenger, &mockSpeech{}, logger)
	return &testEnv{store: store, gen: gen, messenger: messenger, conv: conv, genUC: genUC, persist: persist}
}

func (e *testEnv) configure(key domain.EntityKey, fn func(c *domain.EntityConfig)) {
	st := e.store.Resolve(key)
	st.Lock()
	fn(&st.Config)
	st.Unlock()
}

func texts(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

// Tests

func TestDebounce_CoalescesBurst(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "Quite so.", nil })
	defer env.conv.Close()

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) { c.ResponseDelay = 50 * time.Millisecond })

	for _, s := range []string{"one", "two", "three"} {
		env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "c1", Text: s})
	}

	env.gen.waitCalls(t, 1)
	env.messenger.waitDelivered(t, 1)

	// no second call arrives
	select {
	case <-env.gen.called:
		t.Fatal("Expected exactly one generator call")
	case <-time.After(150 * time.Millisecond):
	}

	reqs := env.gen.Requests()
	got := strings.Join(texts(reqs[0].Messages), ",")
	if got != "one,two,three" {
		t.Errorf("Expected buffer [one two three] in order, got %s", got)
	}

	sent := env.messenger.Sent()
	if len(sent) != 1 || sent[0].Text != "Quite so." || sent[0].ChannelID != "c1" {
		t.Errorf("Unexpected deliveries: %+v", sent)
	}

	st := env.store.Resolve(key)
	st.Lock()
	defer st.Unlock()
	if st.BufferLen() != 0 || st.HasPendingFlush() {
		t.Error("Expected buffer and timer cleared after reply")
	}
	if st.Log.Len() != 4 {
		t.Errorf("Expected 3 user entries and 1 reply in log, got %d", st.Log.Len())
	}
}

func TestDebounce_FrequencyPolicy(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "ok", nil })
	defer env.conv.Close()

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) {
		c.ResponseDelay = time.Hour
		c.SetFrequency("muted", domain.FrequencyNone)
		c.SetFrequency("quiet", domain.FrequencyMention)
	})
	st := env.store.Resolve(key)

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "muted", Text: "x"})
	st.Lock()
	if st.Log.Len() != 0 || st.BufferLen() != 0 {
		t.Error("Expected muted channel message not recorded")
	}
	st.Unlock()

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "quiet", Text: "chatter"})
	st.Lock()
	if st.Log.Len() != 1 || st.BufferLen() != 1 {
		t.Error("Expected mention-only channel message recorded for context")
	}
	if st.HasPendingFlush() {
		t.Error("Expected no reply scheduled for an unaddressed message")
	}
	st.Unlock()

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "quiet", Text: "jeeves?", Addressed: true})
	st.Lock()
	if !st.HasPendingFlush() {
		t.Error("Expected reply scheduled when addressed")
	}
	st.Unlock()

	// an unaddressed follow-up still cancels the pending reply
	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "quiet", Text: "chatter"})
	st.Lock()
	if st.HasPendingFlush() {
		t.Error("Expected unaddressed follow-up to cancel the pending reply")
	}
	if st.BufferLen() != 3 {
		t.Errorf("Expected 3 buffered messages, got %d", st.BufferLen())
	}
	st.Unlock()
}

func TestClose_RejectsNewWork(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "ok", nil })

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) { c.ResponseDelay = time.Hour })
	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "c1", Text: "hello"})

	env.conv.Close()

	st := env.store.Resolve(key)
	st.Lock()
	if st.HasPendingFlush() {
		t.Error("Expected Close to cancel the pending reply")
	}
	st.Unlock()

	if env.conv.track() {
		env.conv.wg.Done()
		t.Error("Expected no work accepted after Close")
	}

	ran := false
	env.conv.goBackground(func(context.Context) { ran = true })
	env.conv.wg.Wait()
	if ran {
		t.Error("Expected background work skipped after Close")
	}
}

func TestDebounce_PrivateDisallowed(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "ok", nil })
	defer env.conv.Close()

	key := domain.PrivateKey("u1")
	env.configure(key, func(c *domain.EntityConfig) { c.AllowPrivate = false })

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "dm", Text: "hello"})

	st := env.store.Resolve(key)
	st.Lock()
	defer st.Unlock()
	if st.Log.Len() != 0 || st.HasPendingFlush() {
		t.Error("Expected private message dropped")
	}
}

func TestDebounce_DelaySelection(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "ok", nil })
	defer env.conv.Close()
	env.conv.linkFloor = time.Hour

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) { c.ResponseDelay = 10 * time.Millisecond })

	// a link raises the delay to the floor
	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "c1", Text: "see https://example.com"})
	select {
	case <-env.gen.called:
		t.Fatal("Expected link message to wait for the floor")
	case <-time.After(100 * time.Millisecond):
	}

	// a command fires immediately and supersedes the pending timer
	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "c1", Text: "now please", IsCommand: true})
	env.gen.waitCalls(t, 1)
	env.messenger.waitDelivered(t, 1)

	if got := strings.Join(texts(env.gen.Requests()[0].Messages), ","); got != "see https://example.com,now please" {
		t.Errorf("Unexpected prompt messages: %s", got)
	}
}

func TestFlush_FailureNoticeAndCleanup(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) {
		return "", &repo.ProviderError{StatusCode: 400, Message: "bad request"}
	})
	defer env.conv.Close()

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) { c.ResponseDelay = 0 })

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "c1", Text: "hi"})
	env.messenger.waitDelivered(t, 1)

	sent := env.messenger.Sent()
	if len(sent) != 1 || sent[0].Text != noticeFailed {
		t.Errorf("Expected failure notice, got %+v", sent)
	}
	st := env.store.Resolve(key)
	st.Lock()
	defer st.Unlock()
	if st.BufferLen() != 0 {
		t.Error("Expected buffer cleared after a failed turn")
	}
}

func TestTrigger_EmptyReplyNotice(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "", nil })
	defer env.conv.Close()

	key := domain.PrivateKey("u1")
	text, err := env.conv.Trigger(context.Background(), key, "dm")
	if err != nil || text != "" {
		t.Fatalf("Expected empty reply without error, got %q, %v", text, err)
	}
	if sent := env.messenger.Sent(); len(sent) != 1 || sent[0].Text != noticeNoReply {
		t.Errorf("Expected no-reply notice, got %+v", sent)
	}
}

func TestTrigger_TranscriptionOnly(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "x", nil })
	defer env.conv.Close()

	key := domain.PrivateKey("u1")
	env.configure(key, func(c *domain.EntityConfig) { c.Mode = domain.PersonaWhisper })

	_, err := env.conv.Trigger(context.Background(), key, "dm")
	if !errors.Is(err, usecase.ErrTranscriptionOnly) {
		t.Errorf("Expected ErrTranscriptionOnly, got %v", err)
	}
	if len(env.gen.Requests()) != 0 {
		t.Error("Expected generator not called")
	}
}

func TestDeliver_VoiceOutput(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "Good evening.", nil })
	defer env.conv.Close()

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) { c.VoiceOutput = true })

	if _, err := env.conv.Trigger(context.Background(), key, "c1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(env.messenger.audio) != 1 {
		t.Errorf("Expected one audio upload, got %d", len(env.messenger.audio))
	}

	// synthesis failure still leaves the text reply
	env.conv.speech = &mockSpeech{err: errors.New("tts down")}
	if _, err := env.conv.Trigger(context.Background(), key, "c1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(env.messenger.Sent()) != 2 || len(env.messenger.audio) != 1 {
		t.Errorf("Expected second text without audio, got %d texts and %d audio", len(env.messenger.Sent()), len(env.messenger.audio))
	}
}

func TestReactionMode(t *testing.T) {
	env := newTestEnv(func(req *repo.CompletionRequest) (string, error) {
		if req.SystemPrompt == usecase.DefaultPromptSet().Reaction {
			return "🎩", nil
		}
		return "ok", nil
	})
	defer env.conv.Close()

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) {
		c.ResponseDelay = time.Hour
		c.ReactionMode = true
		c.ReactionChannels = []string{"c1"}
	})

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "c1", MessageID: "m1", Text: "I bought a hat"})
	env.messenger.waitDelivered(t, 1)

	// the tracker update happens right after the reaction is sent
	deadline := time.Now().Add(time.Second)
	for {
		st := env.store.Resolve(key)
		st.Lock()
		recent := st.Reactions.Recent()
		st.Unlock()
		if len(recent) == 1 {
			if recent[0].Emoji != "🎩" || recent[0].Snippet != "I bought a hat" {
				t.Errorf("Unexpected reaction record: %+v", recent[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected reaction recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAutoTranslate(t *testing.T) {
	env := newTestEnv(func(req *repo.CompletionRequest) (string, error) {
		if strings.Contains(req.SystemPrompt, "French") {
			return "Bonjour", nil
		}
		return "ok", nil
	})
	defer env.conv.Close()

	key := domain.GroupKey("g1")
	env.configure(key, func(c *domain.EntityConfig) {
		c.ResponseDelay = time.Hour
		c.TranslationTargets = []domain.TranslationTarget{{ID: "c1", Language: "French"}}
	})

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: key, ChannelID: "c1", Text: "Hello"})
	env.messenger.waitDelivered(t, 1)

	sent := env.messenger.Sent()
	if len(sent) != 1 || sent[0].Text != "(French) Bonjour" {
		t.Errorf("Unexpected translation: %+v", sent)
	}
	st := env.store.Resolve(key)
	st.Lock()
	defer st.Unlock()
	if st.Log.Len() != 1 {
		t.Errorf("Expected translation kept out of the log, got %d entries", st.Log.Len())
	}
}

func TestEntities_Independent(t *testing.T) {
	env := newTestEnv(func(*repo.CompletionRequest) (string, error) { return "ok", nil })
	defer env.conv.Close()

	group, private := domain.GroupKey("1"), domain.PrivateKey("1")
	env.configure(group, func(c *domain.EntityConfig) { c.ResponseDelay = time.Hour })
	env.configure(private, func(c *domain.EntityConfig) { c.ResponseDelay = time.Hour })

	if env.store.Resolve(group) != env.store.Resolve(group) {
		t.Error("Expected resolve to return the same state")
	}

	env.conv.OnInboundMessage(context.Background(), InboundMessage{Key: group, ChannelID: "c1", Text: "group only"})

	st := env.store.Resolve(private)
	st.Lock()
	defer st.Unlock()
	if st.Log.Len() != 0 || st.BufferLen() != 0 {
		t.Error("Expected private state untouched by group message")
	}
}
