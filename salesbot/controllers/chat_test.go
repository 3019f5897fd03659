package controllers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salesbot/salesbot/services/llm"
	"salesbot/salesbot/services/notifier"
	"salesbot/salesbot/services/persona"
	"salesbot/salesbot/sources/psql/dao"
	"salesbot/salesbot/sources/psql/models"
	"salesbot/salesbot/sources/psql/psqltest"
	"salesbot/salesbot/sources/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeLLM struct {
	mu       sync.Mutex
	requests []llm.ChatRequest
	reply    string
	err      error
}

func (f *fakeLLM) Run(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	posts []notifier.Post
}

func (f *fakeNotifier) Post(ctx context.Context, p notifier.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, p)
	return nil
}

type fakeArchiver struct {
	sessions []models.Session
	counts   []int
	stored   map[string]storage.Transcript
	err      error
}

func (f *fakeArchiver) ArchiveTranscript(ctx context.Context, s models.Session, msgs []models.Message) (string, error) {
	f.sessions = append(f.sessions, s)
	f.counts = append(f.counts, len(msgs))
	if f.err != nil {
		return "", f.err
	}
	key := storage.TranscriptKey(s.Username, s.ID.String())
	if f.stored == nil {
		f.stored = map[string]storage.Transcript{}
	}
	f.stored[key] = storage.BuildTranscript(s, msgs, time.Now())
	return key, nil
}

func (f *fakeArchiver) GetTranscript(ctx context.Context, username, sessionID string) (*storage.Transcript, error) {
	tr, ok := f.stored[storage.TranscriptKey(username, sessionID)]
	if !ok {
		return nil, storage.ErrTranscriptNotFound
	}
	return &tr, nil
}

type harness struct {
	db       *gorm.DB
	ctrl     *ChatController
	llm      *fakeLLM
	notifier *fakeNotifier
}

func newHarness(t *testing.T, archiver TranscriptArchiver) *harness {
	t.Helper()
	db := psqltest.NewDatabase(t)
	h := &harness{
		db:       db.DB,
		llm:      &fakeLLM{reply: "How much is it?"},
		notifier: &fakeNotifier{},
	}
	h.ctrl = NewChatController(dao.NewChatDAO(db.DB), h.llm, h.notifier, persona.NewCatalog(), archiver, ChatOptions{
		Model:       "gemini-1.5-flash",
		Channel:     "bot-updates",
		DisplayName: "Bot User",
	})
	return h
}

func (h *harness) messages(t *testing.T, username string) []string {
	t.Helper()
	var s models.Session
	if err := h.db.Where("username = ?", username).First(&s).Error; err != nil {
		t.Fatalf("session for %s: %v", username, err)
	}
	var texts []string
	h.db.Model(&models.Message{}).Where("chat_id = ?", s.ID).Order("seq ASC").Pluck("message", &texts)
	return texts
}

func (h *harness) messageCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	h.db.Model(&models.Message{}).Count(&n)
	return n
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	got, err := h.ctrl.CreateSession(ctx, "alice", "basic")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if got != "Bot created with level BASIC" {
		t.Errorf("unexpected confirmation %q", got)
	}

	got, err = h.ctrl.CreateSession(ctx, "alice", "COMPLEJO")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Bot created with level COMPLEX" {
		t.Errorf("unexpected confirmation %q", got)
	}

	var count int64
	h.db.Model(&models.Session{}).Where("username = ?", "alice").Count(&count)
	if count != 1 {
		t.Fatalf("expected one session for alice, got %d", count)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.ctrl.CreateSession(ctx, "alice", "EXPERT"); !errors.Is(err, ErrInvalidDifficulty) {
		t.Errorf("expected ErrInvalidDifficulty, got %v", err)
	}
	if _, err := h.ctrl.CreateSession(ctx, "  ", "BASIC"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("expected ErrInvalidUsername, got %v", err)
	}
	var count int64
	h.db.Model(&models.Session{}).Count(&count)
	if count != 0 {
		t.Errorf("invalid input must not write, found %d sessions", count)
	}
}

func TestInvalidLevelRejectedAtBothBoundaries(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.ctrl.CreateSession(context.Background(), "alice", "EXPERT"); !errors.Is(err, ErrInvalidDifficulty) {
		t.Errorf("expected ErrInvalidDifficulty, got %v", err)
	}
	if _, err := persona.NewCatalog().Prompt("EXPERT"); !errors.Is(err, persona.ErrUnknownDifficultyLevel) {
		t.Errorf("expected ErrUnknownDifficultyLevel, got %v", err)
	}
}

func TestChatBotWithoutSession(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ctrl.ChatBot(context.Background(), "ghost", "Hello")
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if n := h.messageCount(t); n != 0 {
		t.Errorf("expected no messages written, got %d", n)
	}
	if len(h.llm.requests) != 0 || len(h.notifier.posts) != 0 {
		t.Error("expected no outbound calls")
	}
}

func TestChatBotFirstMessage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.ctrl.CreateSession(ctx, "alice", "BASIC"); err != nil {
		t.Fatal(err)
	}

	reply, err := h.ctrl.ChatBot(ctx, "alice", "Hello")
	if err != nil {
		t.Fatalf("ChatBot failed: %v", err)
	}
	if reply != "How much is it?" {
		t.Errorf("unexpected reply %q", reply)
	}

	msgs := h.messages(t, "alice")
	if len(msgs) != 2 || msgs[0] != "Hello" || msgs[1] != "How much is it?" {
		t.Fatalf("unexpected stored messages %v", msgs)
	}

	if len(h.llm.requests) != 1 {
		t.Fatalf("expected one model call, got %d", len(h.llm.requests))
	}
	req := h.llm.requests[0]
	if req.Prompt != "Hello" || req.Model != "gemini-1.5-flash" {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.History) != 1 || req.History[0].Role != "user" {
		t.Fatalf("expected a single user turn, got %+v", req.History)
	}
	preamble, _ := persona.NewCatalog().Prompt(persona.Basic)
	parts := req.History[0].Parts
	if len(parts) != 2 || parts[0] != preamble || parts[1] != "Hello" {
		t.Errorf("first exchange should seed only persona + inbound, got %q", parts)
	}

	if len(h.notifier.posts) != 1 {
		t.Fatalf("expected one notification, got %d", len(h.notifier.posts))
	}
	post := h.notifier.posts[0]
	if post.Text != "How much is it?" || post.Channel != "bot-updates" || post.Username != "Bot User" {
		t.Errorf("unexpected post %+v", post)
	}
}

func TestChatBotReplaysHistoryInOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.ctrl.CreateSession(ctx, "alice", "INTERMEDIATE")

	h.llm.reply = "r1"
	if _, err := h.ctrl.ChatBot(ctx, "alice", "m1"); err != nil {
		t.Fatal(err)
	}
	h.llm.reply = "r2"
	if _, err := h.ctrl.ChatBot(ctx, "alice", "how+much"); err != nil {
		t.Fatal(err)
	}

	req := h.llm.requests[1]
	if req.Prompt != "how+much" {
		t.Errorf("prompt should be the raw inbound text, got %q", req.Prompt)
	}
	preamble, _ := persona.NewCatalog().Prompt(persona.Intermediate)
	want := []string{preamble, "m1", "r1", "how+much", "how much"}
	parts := req.History[0].Parts
	if len(parts) != len(want) {
		t.Fatalf("expected %d parts, got %d: %q", len(want), len(parts), parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, parts[i], want[i])
		}
	}

	preambles := 0
	for _, p := range parts {
		if p == preamble {
			preambles++
		}
	}
	if preambles != 1 {
		t.Errorf("expected exactly one persona preamble, got %d", preambles)
	}

	msgs := h.messages(t, "alice")
	if len(msgs) != 4 || msgs[3] != "r2" {
		t.Errorf("persona must not be stored; got %v", msgs)
	}
}

func TestChatBotModelFailureKeepsInbound(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.ctrl.CreateSession(ctx, "alice", "BASIC")
	h.llm.err = errors.New("quota exceeded")

	if _, err := h.ctrl.ChatBot(ctx, "alice", "Hello"); err == nil {
		t.Fatal("expected model failure to surface")
	}
	msgs := h.messages(t, "alice")
	if len(msgs) != 1 || msgs[0] != "Hello" {
		t.Errorf("inbound message should stay recorded, got %v", msgs)
	}
	if len(h.notifier.posts) != 0 {
		t.Error("nothing should be posted after a model failure")
	}
}

func TestCreateSessionArchivesPrevious(t *testing.T) {
	arch := &fakeArchiver{}
	h := newHarness(t, arch)
	ctx := context.Background()

	h.ctrl.CreateSession(ctx, "alice", "BASIC")
	if len(arch.sessions) != 0 {
		t.Fatal("nothing to archive for a brand-new user")
	}
	h.ctrl.ChatBot(ctx, "alice", "Hello")

	arch.err = errors.New("bucket gone")
	if _, err := h.ctrl.CreateSession(ctx, "alice", "MEDIO"); err != nil {
		t.Fatalf("archive failure must not block replacement: %v", err)
	}
	if len(arch.sessions) != 1 || arch.counts[0] != 2 || arch.sessions[0].Level != "BASIC" {
		t.Errorf("unexpected archive calls %+v %v", arch.sessions, arch.counts)
	}
	if n := h.messageCount(t); n != 0 {
		t.Errorf("old messages should be purged, found %d", n)
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.ctrl.History(ctx, "alice"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	h.ctrl.CreateSession(ctx, "alice", "BASIC")
	h.ctrl.ChatBot(ctx, "alice", "Hello")

	resp, err := h.ctrl.History(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Level != "BASIC" || len(resp.Messages) != 2 || resp.Messages[0].Text != "Hello" || resp.Messages[1].Seq != 2 {
		t.Errorf("unexpected history %+v", resp)
	}
}

func TestBuildHistoryThreshold(t *testing.T) {
	tests := []struct {
		name   string
		stored []string
		want   []string
	}{
		{"empty", nil, []string{"a b"}},
		{"single stored message is dropped", []string{"a+b"}, []string{"a b"}},
		{"two stored messages are replayed", []string{"x", "a+b"}, []string{"x", "a+b", "a b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildHistory(tt.stored, "a+b")
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestUsernameIsTrimmedEverywhere(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.ctrl.CreateSession(ctx, " alice", "BASIC"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.ChatBot(ctx, "alice ", "Hello"); err != nil {
		t.Fatalf("padded username should reach the same session: %v", err)
	}
	if got := h.messages(t, "alice"); len(got) != 2 || got[0] != "Hello" {
		t.Errorf("unexpected messages %v", got)
	}
	resp, err := h.ctrl.History(ctx, "\talice")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Username != "alice" || len(resp.Messages) != 2 {
		t.Errorf("unexpected history %+v", resp)
	}
}

func TestBlankUsernameRejected(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.ctrl.ChatBot(ctx, "  ", "Hello"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("ChatBot: expected ErrInvalidUsername, got %v", err)
	}
	if _, err := h.ctrl.History(ctx, " "); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("History: expected ErrInvalidUsername, got %v", err)
	}
	if n := h.messageCount(t); n != 0 {
		t.Errorf("expected no writes, got %d messages", n)
	}
	if len(h.llm.requests) != 0 {
		t.Error("model must not be called for a blank username")
	}
}

func TestTranscriptOfReplacedSession(t *testing.T) {
	arch := &fakeArchiver{}
	h := newHarness(t, arch)
	ctx := context.Background()

	h.ctrl.CreateSession(ctx, "alice", "COMPLEJO")
	h.ctrl.ChatBot(ctx, "alice", "Hello")
	first, err := h.ctrl.History(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	h.ctrl.CreateSession(ctx, "alice", "BASICO")

	tr, err := h.ctrl.Transcript(ctx, " alice", first.SessionID)
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if tr.Level != "COMPLEX" || len(tr.Messages) != 2 || tr.Messages[0].Text != "Hello" {
		t.Errorf("unexpected transcript %+v", tr)
	}

	if _, err := h.ctrl.Transcript(ctx, "alice", "not-a-uuid"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("expected ErrInvalidSessionID, got %v", err)
	}
	if _, err := h.ctrl.Transcript(ctx, "alice", uuid.NewString()); !errors.Is(err, storage.ErrTranscriptNotFound) {
		t.Errorf("expected ErrTranscriptNotFound, got %v", err)
	}
}

func TestTranscriptWithoutArchive(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.ctrl.Transcript(context.Background(), "alice", uuid.NewString()); !errors.Is(err, ErrArchiveDisabled) {
		t.Errorf("expected ErrArchiveDisabled, got %v", err)
	}
}
