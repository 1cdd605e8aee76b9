package app

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docbot/internal/readiness"
	"docbot/pkg/ai"
	"docbot/pkg/chunker"
	"docbot/pkg/domain"
	"docbot/pkg/pdftext/pdftest"
	"docbot/pkg/rag"
	"docbot/pkg/storage"
	"docbot/pkg/store"
	"docbot/pkg/vectorstore"
)

const vacationPhrase = "employees receive twenty vacation days"

type hashEmbedder struct{ dim int }

func (h hashEmbedder) EmbedText(_ context.Context, text, _ string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(strings.Trim(w, ".,?!")))
		vec[int(f.Sum32())%h.dim]++
	}
	return vec, nil
}

type stubGenerator struct {
	calls int
	user  string
	err   error
}

func (s *stubGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	s.calls++
	s.user = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return "You get twenty days.", nil
}

// failingEmbedder delegates to hashEmbedder and fails every call after the
// first okCalls.
type failingEmbedder struct {
	hashEmbedder
	okCalls int32
	calls   atomic.Int32
}

func (f *failingEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	if f.calls.Add(1) > f.okCalls {
		return nil, errors.New("embedding backend unavailable")
	}
	return f.hashEmbedder.EmbedText(ctx, text, taskType)
}

type testEnv struct {
	app     *App
	store   *store.MemoryStore
	vectors *vectorstore.Manager
	gen     *stubGenerator
	gate    *readiness.Gate
	blobDir string
}

func newTestEnv(t *testing.T, topK int) *testEnv {
	t.Helper()
	return newTestEnvWithEmbedder(t, topK, hashEmbedder{dim: 1024})
}

func newTestEnvWithEmbedder(t *testing.T, topK int, emb ai.Embedder) *testEnv {
	t.Helper()
	vectors, err := vectorstore.NewManager(vectorstore.Config{
		Backend:    vectorstore.NewMemoryBackend(),
		Embedder:   emb,
		EmbedderID: ai.EmbedderIdentity("hash", "words", 1024),
		Dimension:  1024,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	blobDir := t.TempDir()
	blobs, err := storage.NewFileStore(blobDir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	sessions, err := store.NewJWTSessionStore("test-session-secret-0123456789", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	gate := readiness.NewGate("embeddings")
	gate.Open()
	gen := &stubGenerator{}
	data := store.NewMemoryStore()
	a, err := New(Config{
		Store:               data,
		Sessions:            sessions,
		Vectors:             vectors,
		Retriever:           rag.NewRetriever(emb, topK),
		Answerer:            rag.NewAnswerer(gen),
		Chunker:             chunker.Default(),
		Blobs:               blobs,
		Gate:                gate,
		ReadinessTimeout:    20 * time.Millisecond,
		TopK:                topK,
		LLMAPIKeyConfigured: true,
		TempDir:             t.TempDir(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &testEnv{app: a, store: data, vectors: vectors, gen: gen, gate: gate, blobDir: blobDir}
}

func (e *testEnv) signup(t *testing.T, email string) domain.User {
	t.Helper()
	user, _, err := e.app.Signup(SignupInput{Email: email, Password: "secret1", ConfirmPassword: "secret1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return user
}

// handbookText is 1200 characters with the vacation phrase only inside the
// second 500/50 window (offsets 450-950).
func handbookText() string {
	filler := strings.Repeat("lorem ipsum dolor sit amet ", 60)
	text := filler[:600] + " " + vacationPhrase + " " + filler
	return text[:1200]
}

func TestUploadChatDeleteEndToEnd(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	user := env.signup(t, "owner@example.com")
	bot, err := env.app.CreateBot(user, BotInput{})
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}

	first, err := env.app.UploadDocument(ctx, user, bot.ID, "handbook.pdf", bytes.NewReader(pdftest.Build(handbookText())))
	if err != nil {
		t.Fatalf("upload handbook: %v", err)
	}
	if first.Chunks != 3 {
		t.Fatalf("expected 3 chunks for 1200 characters, got %d", first.Chunks)
	}
	second, err := env.app.UploadDocument(ctx, user, bot.ID, "faq.PDF", bytes.NewReader(pdftest.Build("Parking is free for staff.")))
	if err != nil {
		t.Fatalf("upload faq: %v", err)
	}
	total, err := env.vectors.Count(ctx, bot.TenantKey())
	if err != nil || total != first.Chunks+second.Chunks {
		t.Fatalf("expected %d chunks in collection, got %d (%v)", first.Chunks+second.Chunks, total, err)
	}

	reply, err := env.app.Chat(ctx, ChatRequest{APIKey: bot.APIKey, Message: "How many vacation days do employees receive?", SessionID: "s1"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Response != "You get twenty days." {
		t.Fatalf("unexpected reply %q", reply.Response)
	}
	if !strings.Contains(env.gen.user, vacationPhrase) {
		t.Fatalf("expected retrieved context to hold the vacation chunk, got %q", env.gen.user)
	}
	logs, _ := env.app.ChatLogs(user, bot.ID, 10)
	if len(logs) != 1 || logs[0].SessionID != "s1" || logs[0].BotResponse != reply.Response {
		t.Fatalf("unexpected chat logs %+v", logs)
	}

	removed, err := env.app.DeleteDocument(ctx, user, bot.ID, first.Document.ID)
	if err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if removed != first.Chunks {
		t.Fatalf("expected %d chunks removed, got %d", first.Chunks, removed)
	}
	if total, _ := env.vectors.Count(ctx, bot.TenantKey()); total != second.Chunks {
		t.Fatalf("expected %d chunks left, got %d", second.Chunks, total)
	}
	if _, err := env.app.DeleteDocument(ctx, user, bot.ID, first.Document.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound on second delete, got %v", err)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	env := newTestEnv(t, 5)
	user := env.signup(t, "a@example.com")
	bot, _ := env.app.CreateBot(user, BotInput{})
	_, err := env.app.UploadDocument(context.Background(), user, bot.ID, "notes.txt", strings.NewReader("hello"))
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
	_, err = env.app.UploadDocument(context.Background(), user, bot.ID, "fake.pdf", strings.NewReader("not a pdf"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unreadable pdf, got %v", err)
	}
}

func TestChatEmptyCollectionSkipsModel(t *testing.T) {
	env := newTestEnv(t, 5)
	user := env.signup(t, "a@example.com")
	bot, _ := env.app.CreateBot(user, BotInput{})
	reply, err := env.app.Chat(context.Background(), ChatRequest{BotID: bot.ID, Message: "anything?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Response != rag.NoRelevantInformation || env.gen.calls != 0 {
		t.Fatalf("expected short circuit, got %q calls=%d", reply.Response, env.gen.calls)
	}
	if n, _ := env.store.CountChatLogs(bot.ID); n != 1 {
		t.Fatalf("expected the exchange to be logged, got %d", n)
	}
}

func TestChatErrors(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	if _, err := env.app.Chat(ctx, ChatRequest{Message: "hi"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without bot, got %v", err)
	}
	if _, err := env.app.Chat(ctx, ChatRequest{APIKey: "k", Message: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank message, got %v", err)
	}
	if _, err := env.app.Chat(ctx, ChatRequest{APIKey: "missing", Message: "hi"}); !errors.Is(err, ErrBotNotFound) {
		t.Fatalf("expected ErrBotNotFound, got %v", err)
	}
}

func TestChatWaitsForReadiness(t *testing.T) {
	env := newTestEnv(t, 5)
	env.app.gate = readiness.NewGate("embeddings")
	_, err := env.app.LegacyChat(context.Background(), "", "hello")
	var timeout *readiness.TimeoutError
	if !errors.As(err, &timeout) || !errors.Is(err, readiness.ErrNotReady) {
		t.Fatalf("expected readiness timeout, got %v", err)
	}

	failed := readiness.NewGate("embeddings")
	failed.Start(context.Background(), func(context.Context) error { return errors.New("pull failed") })
	env.app.gate = failed
	if _, err := env.app.LegacyChat(context.Background(), "", "hello"); !errors.Is(err, readiness.ErrNotReady) {
		t.Fatalf("expected warm-up failure to match ErrNotReady, got %v", err)
	}
}

func TestLegacyUploadAndChatShareDefaultTenant(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	res, err := env.app.LegacyUpload(ctx, "handbook.pdf", bytes.NewReader(pdftest.Build(handbookText())))
	if err != nil {
		t.Fatalf("legacy upload: %v", err)
	}
	if res.Filename != "handbook.pdf" || res.Chunks != 3 {
		t.Fatalf("unexpected legacy result %+v", res)
	}
	if _, err := env.app.LegacyChat(ctx, "", "vacation days"); err != nil {
		t.Fatalf("legacy chat: %v", err)
	}
	if env.gen.calls != 1 {
		t.Fatalf("expected model call for non-empty default tenant")
	}
}

func TestLegacyChatRejectsOtherTenants(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	user := env.signup(t, "owner@example.com")
	bot, _ := env.app.CreateBot(user, BotInput{})
	if _, err := env.app.UploadDocument(ctx, user, bot.ID, "h.pdf", bytes.NewReader(pdftest.Build(handbookText()))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	before, _ := env.vectors.Collections(ctx)

	for _, tenant := range []string{"ghost-tenant", bot.TenantKey()} {
		if _, err := env.app.LegacyChat(ctx, tenant, "vacation days"); !errors.Is(err, ErrTenantNotFound) {
			t.Fatalf("expected ErrTenantNotFound for %q, got %v", tenant, err)
		}
	}
	if env.gen.calls != 0 {
		t.Fatalf("expected no model call for rejected tenants, got %d", env.gen.calls)
	}

	reply, err := env.app.LegacyChat(ctx, domain.LegacyTenantKey, "vacation days")
	if err != nil || reply.Response != rag.NoRelevantInformation {
		t.Fatalf("expected empty default tenant, got %q (%v)", reply.Response, err)
	}
	after, _ := env.vectors.Collections(ctx)
	if len(after) != len(before) {
		t.Fatalf("expected chat to create no collections, had %d now %d", len(before), len(after))
	}
}

func TestChatAfterBotDeleteDoesNotRecreateCollection(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	user := env.signup(t, "owner@example.com")
	bot, _ := env.app.CreateBot(user, BotInput{})
	if _, err := env.app.Chat(ctx, ChatRequest{BotID: bot.ID, Message: "anything?"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if cols, _ := env.vectors.Collections(ctx); len(cols) != 0 {
		t.Fatalf("expected chat on an empty bot to create nothing, got %d collections", len(cols))
	}
	if _, err := env.app.UploadDocument(ctx, user, bot.ID, "h.pdf", bytes.NewReader(pdftest.Build(handbookText()))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := env.app.DeleteBot(ctx, user, bot.ID); err != nil {
		t.Fatalf("delete bot: %v", err)
	}
	if _, err := env.app.Chat(ctx, ChatRequest{BotID: bot.ID, Message: "vacation days"}); !errors.Is(err, ErrBotNotFound) {
		t.Fatalf("expected ErrBotNotFound after delete, got %v", err)
	}
	if cols, _ := env.vectors.Collections(ctx); len(cols) != 0 {
		t.Fatalf("expected no collections after bot delete, got %d", len(cols))
	}
}

func TestUploadRollsBackWhenIndexingFails(t *testing.T) {
	emb := &failingEmbedder{hashEmbedder: hashEmbedder{dim: 1024}, okCalls: 20}
	env := newTestEnvWithEmbedder(t, 5, emb)
	ctx := context.Background()
	user := env.signup(t, "owner@example.com")
	bot, _ := env.app.CreateBot(user, BotInput{})

	page := strings.Repeat("policy handbook section text ", 140)
	pdf := pdftest.Build(page, page, page, page, page, page)
	if _, err := env.app.UploadDocument(ctx, user, bot.ID, "big.pdf", bytes.NewReader(pdf)); err == nil {
		t.Fatalf("expected upload to fail when embedding fails")
	}
	if emb.calls.Load() <= emb.okCalls {
		t.Fatalf("expected indexing to get past the first %d embeddings, got %d calls", emb.okCalls, emb.calls.Load())
	}
	if n, err := env.vectors.Count(ctx, bot.TenantKey()); err != nil || n != 0 {
		t.Fatalf("expected no chunks left after rollback, got %d (%v)", n, err)
	}
	if n, _ := env.store.CountDocuments(bot.ID); n != 0 {
		t.Fatalf("expected no document row, got %d", n)
	}
	var files []string
	_ = filepath.WalkDir(env.blobDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if len(files) != 0 {
		t.Fatalf("expected no stored file after rollback, found %v", files)
	}
}

func TestUploadHidesParserDetail(t *testing.T) {
	env := newTestEnv(t, 5)
	user := env.signup(t, "a@example.com")
	bot, _ := env.app.CreateBot(user, BotInput{})
	_, err := env.app.UploadDocument(context.Background(), user, bot.ID, "fake.pdf", strings.NewReader("not a pdf"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err.Error() != ErrInvalidInput.Error()+": could not read pdf" {
		t.Fatalf("expected a fixed message, got %q", err.Error())
	}
}

func TestSignupLoginLogout(t *testing.T) {
	env := newTestEnv(t, 5)
	if _, _, err := env.app.Signup(SignupInput{Email: "a@example.com", Password: "secret1", ConfirmPassword: "other"}); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if _, _, err := env.app.Signup(SignupInput{Email: "a@example.com", Password: "12345", ConfirmPassword: "12345"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected short password to fail, got %v", err)
	}
	user, token, err := env.app.Signup(SignupInput{Email: " A@Example.com ", Password: "secret1", ConfirmPassword: "secret1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "a@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if _, _, err := env.app.Signup(SignupInput{Email: "a@example.com", Password: "secret1", ConfirmPassword: "secret1"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, _, err := env.app.Login("a@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got, err := env.app.Authenticate(token); err != nil || got.ID != user.ID {
		t.Fatalf("authenticate: %+v %v", got, err)
	}
	if err := env.app.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.app.Authenticate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked token to be unauthorized, got %v", err)
	}
	if _, _, err := env.app.Login("A@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestBotOwnershipAndDelete(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	owner := env.signup(t, "owner@example.com")
	other := env.signup(t, "other@example.com")
	bot, err := env.app.CreateBot(owner, BotInput{})
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	if bot.Name != domain.DefaultBotName || bot.PrimaryColor != domain.DefaultPrimaryColor || len(bot.APIKey) != 32 {
		t.Fatalf("unexpected defaults %+v", bot)
	}
	if _, err := env.app.GetBot(other, bot.ID); !errors.Is(err, ErrBotNotFound) {
		t.Fatalf("expected other user to get not found, got %v", err)
	}
	bad := "red"
	if _, err := env.app.UpdateBot(owner, bot.ID, BotInput{PrimaryColor: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid color, got %v", err)
	}
	rotated, err := env.app.RotateAPIKey(owner, bot.ID)
	if err != nil || rotated.APIKey == bot.APIKey {
		t.Fatalf("expected a new api key, err=%v", err)
	}
	if _, err := env.app.WidgetConfig(bot.APIKey); !errors.Is(err, ErrBotNotFound) {
		t.Fatalf("expected old api key to stop working, got %v", err)
	}

	if _, err := env.app.UploadDocument(ctx, owner, bot.ID, "h.pdf", bytes.NewReader(pdftest.Build(handbookText()))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	dash, err := env.app.Dashboard(owner)
	if err != nil || len(dash.Bots) != 1 || dash.Bots[0].DocumentCount != 1 {
		t.Fatalf("unexpected dashboard %+v %v", dash, err)
	}
	if err := env.app.DeleteBot(ctx, owner, bot.ID); err != nil {
		t.Fatalf("delete bot: %v", err)
	}
	cols, _ := env.vectors.Collections(ctx)
	for _, c := range cols {
		if c.TenantKey == bot.TenantKey() {
			t.Fatalf("expected collections dropped with bot")
		}
	}
	if n, _ := env.store.CountDocuments(bot.ID); n != 0 {
		t.Fatalf("expected documents removed with bot")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 5)
	if h := env.app.Health(); h.Status != "ok" || !h.EmbeddingReady {
		t.Fatalf("unexpected health %+v", h)
	}
	env.app.gate = readiness.NewGate("embeddings")
	if h := env.app.Health(); h.Status != "degraded" || h.EmbeddingReady {
		t.Fatalf("expected degraded health, got %+v", h)
	}
}
