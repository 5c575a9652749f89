package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/clips/internal/version"
)

// syncBuffer is a bytes.Buffer safe for commands running in goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeClips(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"home/clip.yaml":   "data:\n  title: Default\n",
		"home/layout.tmpl": `<main><h1><%= .Options.title %></h1><% include "clip:card" %></main>`,
		"card/clip.yaml":   "",
		"card/layout.tmpl": `<p class="card">card</p>`,
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRenderToStdout(t *testing.T) {
	base := writeClips(t)

	out, _, err := execute(t, "render", "home", "--base", base)
	require.NoError(t, err)
	assert.Contains(t, out, `<body><main><h1>Default</h1><p class="card">card</p></main></body>`)
}

func TestRenderSetAndOut(t *testing.T) {
	base := writeClips(t)
	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><body><div id="app">old</div></body></html>`), 0o644))
	out := filepath.Join(t.TempDir(), "index.html")

	stdout, _, err := execute(t, "render", "home",
		"--base", base,
		"--page", page,
		"--target", "#app",
		"--position", "replace",
		"--set", "title=Hello",
		"-o", out,
	)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<body><main><h1>Hello</h1>`)
	assert.NotContains(t, string(data), "old")

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestRenderErrors(t *testing.T) {
	base := writeClips(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid set", []string{"render", "home", "--base", base, "--set", "title"}, `invalid option "title"`},
		{"no clip", []string{"render", "--base", base}, "no clip to render"},
		{"unknown clip", []string{"render", "missing", "--base", base}, "rendering missing"},
		{"bad position", []string{"render", "home", "--base", base, "--position", "middle"}, "failed to load configuration"},
		{"too many args", []string{"render", "home", "card"}, "accepts at most 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFlagsOverrideConfigAndEnvironment(t *testing.T) {
	base := writeClips(t)
	file := filepath.Join(t.TempDir(), "clips.yml")
	require.NoError(t, os.WriteFile(file, []byte("clips:\n  base_path: "+t.TempDir()+"\npage:\n  clip: home\n"), 0o644))

	// The file's base path has no clips, the flag wins.
	out, _, err := execute(t, "render", "--config", file, "--base", base)
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Default</h1>")

	// Environment beats the file and loses to flags.
	t.Setenv("CLIPS_PAGE_TARGET", "#missing")
	_, _, err = execute(t, "render", "--config", file, "--base", base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `target "#missing" not found`)

	_, _, err = execute(t, "render", "--config", file, "--base", base, "--target", "body")
	require.NoError(t, err)
}

func TestConfigFileFromEnvironment(t *testing.T) {
	base := writeClips(t)
	file := filepath.Join(t.TempDir(), "clips.yml")
	require.NoError(t, os.WriteFile(file, []byte("clips:\n  base_path: "+base+"\npage:\n  clip: home\nlog:\n  level: debug\n"), 0o644))
	t.Setenv("CLIPS_CONFIG_FILE", file)

	out, logs, err := execute(t, "render")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Default</h1>")
	assert.Contains(t, logs, "Using config file")
}

func TestWatchRerendersOnChange(t *testing.T) {
	base := writeClips(t)
	out := filepath.Join(t.TempDir(), "index.html")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCmd()
	cmd.SetOut(&syncBuffer{})
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"watch", "home", "--base", base, "-o", out, "--delay", "20ms"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(data), `<p class="card">card</p>`)
	}, 5*time.Second, 20*time.Millisecond)

	card := filepath.Join(base, "card", "layout.tmpl")
	require.Eventually(t, func() bool {
		// Rewriting covers changes made before the watcher started.
		if err := os.WriteFile(card, []byte(`<p class="card">changed</p>`), 0o644); err != nil {
			return false
		}
		data, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(data), `<p class="card">changed</p>`)
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchRequiresLocalPaths(t *testing.T) {
	_, _, err := execute(t, "watch", "home", "--base", "https://example.com/clips")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to watch")
}

func TestServeStopsOnCancel(t *testing.T) {
	base := writeClips(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout := &syncBuffer{}
	cmd := newRootCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"serve", "home", "--base", base, "--port", "0", "--host", "127.0.0.1"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Serving home at http://127.0.0.1:0")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "clips "+version.GetVersion()))
	assert.Contains(t, out, "Platform: ")

	out, _, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.GetShortVersion()+"\n", out)

	out, _, err = execute(t, "version", "--detailed")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: "+version.GetVersion())
	assert.Contains(t, out, "Build type: ")

	out, _, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.GetVersion(), info["version"])
	assert.Contains(t, info, "is_release")

	_, _, err = execute(t, "version", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}
