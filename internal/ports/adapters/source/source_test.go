package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/forPelevin/vidsum/internal/ports"
)

type fakeYT struct{ calls int }

func (f *fakeYT) Download(_ context.Context, url, dir string) (string, bool, error) {
	f.calls++
	return filepath.Join(dir, "yt.mp4"), true, nil
}

func TestResolve_LocalFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lecture.mp4")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &Resolver{yt: &fakeYT{}, client: http.DefaultClient}

	got, downloaded, err := r.Resolve(context.Background(), "  "+p+" ", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got != p || downloaded {
		t.Fatalf("Resolve = %q, %v", got, downloaded)
	}
}

func TestResolve_Errors(t *testing.T) {
	r := &Resolver{yt: &fakeYT{}, client: http.DefaultClient}
	for _, src := range []string{"", "/does/not/exist.mp4", t.TempDir()} {
		_, _, err := r.Resolve(context.Background(), src, t.TempDir())
		if !errors.Is(err, ports.ErrSource) {
			t.Errorf("Resolve(%q) err = %v, want ErrSource", src, err)
		}
	}
}

func TestResolve_YouTubeDelegates(t *testing.T) {
	yt := &fakeYT{}
	r := &Resolver{yt: yt, client: http.DefaultClient}
	_, downloaded, err := r.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if yt.calls != 1 || !downloaded {
		t.Fatalf("youtube downloader not used: calls=%d", yt.calls)
	}
}

func TestResolve_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp4" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "video-bytes")
	}))
	defer srv.Close()

	r := &Resolver{yt: &fakeYT{}, client: srv.Client()}
	dir := t.TempDir()

	got, downloaded, err := r.Resolve(context.Background(), srv.URL+"/media/talk.mp4", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !downloaded || got != filepath.Join(dir, "talk.mp4") {
		t.Fatalf("Resolve = %q, %v", got, downloaded)
	}
	b, _ := os.ReadFile(got)
	if string(b) != "video-bytes" {
		t.Fatalf("content = %q", b)
	}

	_, _, err = r.Resolve(context.Background(), srv.URL+"/missing.mp4", dir)
	if !errors.Is(err, ports.ErrSource) {
		t.Fatalf("err = %v, want ErrSource", err)
	}
}

func TestKey(t *testing.T) {
	tests := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "youtube:dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                "youtube:dQw4w9WgXcQ",
		"https://cdn.example.com/a.mp4":               "url:https://cdn.example.com/a.mp4",
		"/uploads/2024/talk.mp4":                      "file:talk.mp4",
		"talk.mp4":                                    "file:talk.mp4",
		"":                                            "",
	}
	for in, want := range tests {
		if got := Key(in); got != want {
			t.Errorf("Key(%q) = %q, want %q", in, got, want)
		}
	}
}
