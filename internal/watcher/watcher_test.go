package watcher

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestRelevant(t *testing.T) {
	w := New(t.TempDir(), nil, 0)

	cases := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"markdown write", fsnotify.Event{Name: "/docs/guide.md", Op: fsnotify.Write}, true},
		{"markdown create", fsnotify.Event{Name: "/docs/new.md", Op: fsnotify.Create}, true},
		{"markdown remove", fsnotify.Event{Name: "/docs/old.md", Op: fsnotify.Remove}, true},
		{"csv rename", fsnotify.Event{Name: "/docs/data.csv", Op: fsnotify.Rename}, true},
		{"directory create", fsnotify.Event{Name: "/docs/newdir", Op: fsnotify.Create}, true},
		{"chmod only", fsnotify.Event{Name: "/docs/guide.md", Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: "/docs/.guide.md.swp", Op: fsnotify.Write}, false},
		{"editor backup", fsnotify.Event{Name: "/docs/guide.md~", Op: fsnotify.Write}, false},
		{"unsupported extension", fsnotify.Event{Name: "/docs/binary.png", Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.relevant(tc.event))
		})
	}
}

func TestNew_DebounceDefault(t *testing.T) {
	w := New("root", nil, 0)
	assert.Equal(t, DefaultDebounce, w.debounce)

	w = New("root", nil, 500*time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, w.debounce)
}
