package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docbot/pkg/vectorstore"
)

type stubEmbedder struct{ calls int }

func (s *stubEmbedder) EmbedText(context.Context, string, string) ([]float32, error) {
	s.calls++
	return []float32{1, 0}, nil
}

type stubCollection struct {
	size    int
	matches []vectorstore.Match
	gotK    int
	queried bool
}

func (s *stubCollection) Count(context.Context) (int, error) { return s.size, nil }

func (s *stubCollection) Query(_ context.Context, _ []float32, k int) ([]vectorstore.Match, error) {
	s.queried = true
	s.gotK = k
	if k < len(s.matches) {
		return s.matches[:k], nil
	}
	return s.matches, nil
}

type stubGenerator struct {
	calls int
	user  string
	out   string
	err   error
}

func (s *stubGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	s.calls++
	s.user = userPrompt
	return s.out, s.err
}

func TestRetrieveEmptyCollectionSkipsQuery(t *testing.T) {
	emb := &stubEmbedder{}
	col := &stubCollection{}
	got, err := NewRetriever(emb, 0).Retrieve(context.Background(), col, "anything", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got != "" || emb.calls != 0 || col.queried {
		t.Fatalf("expected empty context without query, got %q calls=%d queried=%v", got, emb.calls, col.queried)
	}
}

func TestRetrieveCapsKAtCollectionSize(t *testing.T) {
	col := &stubCollection{size: 2, matches: []vectorstore.Match{{Content: "first"}, {Content: "second"}}}
	got, err := NewRetriever(&stubEmbedder{}, 0).Retrieve(context.Background(), col, "q", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if col.gotK != 2 {
		t.Fatalf("expected k=min(5,2)=2, got %d", col.gotK)
	}
	if got != "first"+ContextDelimiter+"second" {
		t.Fatalf("unexpected context %q", got)
	}
}

func TestRetrieveUsesExplicitTopK(t *testing.T) {
	col := &stubCollection{size: 10, matches: []vectorstore.Match{{Content: "a"}, {Content: "b"}, {Content: "c"}}}
	if _, err := NewRetriever(&stubEmbedder{}, 5).Retrieve(context.Background(), col, "q", 1); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if col.gotK != 1 {
		t.Fatalf("expected k=1, got %d", col.gotK)
	}
}

func TestAnswerEmptyContextShortCircuits(t *testing.T) {
	gen := &stubGenerator{out: "should not be used"}
	got, err := NewAnswerer(gen).Answer(context.Background(), "  \n ", "question?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got != NoRelevantInformation || gen.calls != 0 {
		t.Fatalf("expected short circuit, got %q calls=%d", got, gen.calls)
	}
}

func TestAnswerEmbedsContextAndQuestion(t *testing.T) {
	gen := &stubGenerator{out: " The policy allows 20 days. "}
	got, err := NewAnswerer(gen).Answer(context.Background(), "Employees get 20 days of leave.", "How many leave days?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got != " The policy allows 20 days. " {
		t.Fatalf("unexpected answer %q", got)
	}
	if !strings.Contains(gen.user, "Employees get 20 days of leave.") || !strings.Contains(gen.user, "How many leave days?") {
		t.Fatalf("prompt missing context or question: %q", gen.user)
	}
}

func TestAnswerWrapsGeneratorError(t *testing.T) {
	boom := errors.New("upstream 500")
	_, err := NewAnswerer(&stubGenerator{err: boom}).Answer(context.Background(), "ctx", "q")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
