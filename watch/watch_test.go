package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects invalidated names.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) Invalidate(name string) bool {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return true
}

func (r *recorder) seen(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

func TestRelName(t *testing.T) {
	t.Parallel()

	root := filepath.Join("assets")
	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{filepath.Join("assets", "tex", "rock.png"), "tex/rock.png", true},
		{filepath.Join("assets", "a.bin"), "a.bin", true},
		{"assets", "", false},               // the root itself is not an asset
		{filepath.Join("other", "x"), "", false}, // outside the root
	}
	for _, c := range cases {
		got, ok := RelName(root, c.path)
		if ok != c.ok || got != c.want {
			t.Fatalf("RelName(%q, %q) = %q, %v; want %q, %v", root, c.path, got, ok, c.want, c.ok)
		}
	}
}

// Writing a watched file invalidates the matching resource name.
func TestWatcher_InvalidateOnWrite(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "tex")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "rock.png")
	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w, err := New(rec, Options{Root: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if err := os.WriteFile(file, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rec.seen("tex/rock.png") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no invalidation observed; got %v", rec.names)
}

// A custom Name mapper filters and rewrites events.
func TestWatcher_NameMapper(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.png")
	skip := filepath.Join(dir, "skip.tmp")
	for _, f := range []string{keep, skip} {
		if err := os.WriteFile(f, []byte("v1"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rec := &recorder{}
	w, err := New(rec, Options{
		Root: dir,
		Name: func(rel string) string {
			if strings.HasSuffix(rel, ".tmp") {
				return "" // empty name: ignore the event
			}
			return "img/" + rel
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if err := os.WriteFile(skip, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keep, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rec.seen("img/keep.png") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !rec.seen("img/keep.png") {
		t.Fatalf("mapped invalidation missing; got %v", rec.names)
	}
	if rec.seen("skip.tmp") || rec.seen("img/skip.tmp") {
		t.Fatalf("filtered event leaked through; got %v", rec.names)
	}
}

// Resource names derived from event paths must stay inside the root and
// never come out absolute or dot-escaped.
func FuzzRelName(f *testing.F) {
	f.Add("assets", "assets/tex/rock.png")
	f.Add("assets", "assets")
	f.Add("assets", "/etc/passwd")
	f.Add("/a/b", "/a/b/../x")
	f.Fuzz(func(t *testing.T, root, path string) {
		rel, ok := RelName(root, path)
		if !ok {
			return
		}
		if rel == "" || rel == "." {
			t.Fatalf("ok result must be a real name, got %q", rel)
		}
		if strings.HasPrefix(rel, "/") || rel == ".." || strings.HasPrefix(rel, "../") {
			t.Fatalf("name escapes the root: %q (root=%q path=%q)", rel, root, path)
		}
	})
}
