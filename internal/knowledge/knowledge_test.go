package knowledge_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/pranimitra/internal/knowledge"
)

const sampleYAML = `
entries:
  - question: "Wheat MSP?"
    answer: "Rs 2,275 per quintal."
  - question: "Deworming?"
    answer: "Every three months."
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		want    int
		wantErr string
	}{
		{name: "valid", yaml: sampleYAML, want: 2},
		{name: "empty document", yaml: "", want: 0},
		{name: "unknown key", yaml: "entries:\n  - question: q\n    answer: a\n    source: x\n", wantErr: "decode corpus yaml"},
		{name: "missing answer", yaml: "entries:\n  - question: q\n", wantErr: "entry 0: answer must not be empty"},
		{name: "blank question", yaml: "entries:\n  - question: '  '\n    answer: a\n", wantErr: "question must not be empty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := knowledge.LoadFromReader(strings.NewReader(tc.yaml))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("entries = %d, want %d", len(got), tc.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kb.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := knowledge.File{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got[0].Question != "Wheat MSP?" || got[1].Answer != "Every three months." {
		t.Errorf("Load() = %+v", got)
	}

	if _, err := knowledge.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile(missing): expected error")
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	got, err := knowledge.Default().Load(context.Background())
	if err != nil {
		t.Fatalf("Default().Load: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("default corpus is empty")
	}
	found := false
	for _, e := range got {
		if strings.Contains(e.Question, "wheat") {
			found = true
		}
	}
	if !found {
		t.Error("default corpus should answer the wheat price question")
	}
}

func TestMulti(t *testing.T) {
	t.Parallel()

	a := knowledge.Static{{Question: "a", Answer: "1"}}
	b := knowledge.Static{{Question: "b", Answer: "2"}, {Question: "c", Answer: "3"}}
	got, err := knowledge.Multi(a, b).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var qs []string
	for _, e := range got {
		qs = append(qs, e.Question)
	}
	if strings.Join(qs, ",") != "a,b,c" {
		t.Errorf("merged order = %v, want [a b c]", qs)
	}

	failing := knowledge.SourceFunc(func(context.Context) ([]knowledge.Entry, error) {
		return nil, errors.New("db down")
	})
	if _, err := knowledge.Multi(a, failing).Load(context.Background()); err == nil || !strings.Contains(err.Error(), "source 1") {
		t.Errorf("Multi with failing source: error = %v", err)
	}
}

// mutableSource is a Source whose content and failure can be changed.
type mutableSource struct {
	mu      sync.Mutex
	entries []knowledge.Entry
	err     error
}

func (s *mutableSource) Load(context.Context) ([]knowledge.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries, s.err
}

func (s *mutableSource) set(entries []knowledge.Entry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries, s.err = entries, err
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	src := &mutableSource{entries: []knowledge.Entry{{Question: "q", Answer: "a"}}}
	var changes int
	w, err := knowledge.NewWatcher(context.Background(), src,
		knowledge.WithInterval(0),
		knowledge.WithOnChange(func(old, new []knowledge.Entry) { changes++ }),
	)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	if w.Reload(ctx) {
		t.Error("Reload with unchanged content reported a change")
	}

	src.set([]knowledge.Entry{{Question: "q", Answer: "a2"}}, nil)
	if !w.Reload(ctx) {
		t.Error("Reload with new content reported no change")
	}
	if got := w.Current(); got[0].Answer != "a2" {
		t.Errorf("Current() = %+v after reload", got)
	}

	src.set(nil, errors.New("file vanished"))
	if w.Reload(ctx) {
		t.Error("failed reload reported a change")
	}
	if got, _ := w.Load(ctx); len(got) != 1 || got[0].Answer != "a2" {
		t.Errorf("failed reload replaced the corpus: %+v", got)
	}
	if changes != 1 {
		t.Errorf("onChange calls = %d, want 1", changes)
	}
}

func TestWatcher_InitialLoadError(t *testing.T) {
	t.Parallel()

	src := &mutableSource{err: errors.New("boom")}
	if _, err := knowledge.NewWatcher(context.Background(), src); err == nil {
		t.Error("NewWatcher with failing source: expected error")
	}
}

func TestWatcher_PollsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kb.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	changed := make(chan []knowledge.Entry, 1)
	w, err := knowledge.NewWatcher(context.Background(), knowledge.File{Path: path},
		knowledge.WithInterval(10*time.Millisecond),
		knowledge.WithOnChange(func(_, new []knowledge.Entry) {
			select {
			case changed <- new:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	updated := sampleYAML + "  - question: \"New?\"\n    answer: \"Yes.\"\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if len(got) != 3 {
			t.Errorf("reloaded corpus = %d entries, want 3", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for corpus reload")
	}
}
