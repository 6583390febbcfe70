package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzhelezko/confedit/internal/remote"
)

func TestDefaultRefreshCmd(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/etc/nginx/nginx.conf", "nginx -s reload"},
		{"/etc/nginx/conf.d/site.conf", "nginx -s reload"},
		{"~/.zshrc", "source ~/.zshrc"},
		{"~/.bashrc", "source ~/.bashrc"},
		{"~/.vimrc", "source ~/.vimrc"},
		{"~/.tmux.conf", "tmux source-file ~/.tmux.conf"},
		{"~/.gitconfig", "git config --global -e"},
		{"/etc/hosts", "cat /etc/hosts"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultRefreshCmd(tt.path))
		})
	}
}

func TestAddKeepsOneDescriptorPerPath(t *testing.T) {
	s := NewSet(nil)

	d, err := s.Add(FileDescriptor{FilePath: "~/.zshrc", Description: "zsh"})
	require.NoError(t, err)
	assert.Equal(t, "source ~/.zshrc", d.RefreshCmd)

	_, err = s.Add(FileDescriptor{FilePath: "~/.zshrc", Description: "again"})
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.Len(t, s.List(), 1)
}

func TestAddRejectsMissingFields(t *testing.T) {
	s := NewSet(nil)

	_, err := s.Add(FileDescriptor{FilePath: "/etc/hosts"})
	assert.Error(t, err)
	_, err = s.Add(FileDescriptor{Description: "no path"})
	assert.Error(t, err)
	_, err = s.Add(FileDescriptor{
		FilePath:    "/etc/hosts",
		Description: "hosts",
		RemoteInfo:  &remote.Endpoint{Host: "web1"},
	})
	assert.Error(t, err, "remote endpoint needs a username")
	assert.Empty(t, s.List())
}

func TestUpdateKeepsPosition(t *testing.T) {
	s := NewSet([]FileDescriptor{
		{FilePath: "/a", Description: "a"},
		{FilePath: "/b", Description: "b"},
		{FilePath: "/c", Description: "c"},
	})

	_, err := s.Update("/b", FileDescriptor{FilePath: "/b2", Description: "b2", RefreshCmd: "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b2", "/c"}, paths(s))

	_, err = s.Update("/a", FileDescriptor{FilePath: "/c", Description: "clash"})
	assert.True(t, errors.Is(err, ErrDuplicate))

	_, err = s.Update("/missing", FileDescriptor{FilePath: "/x", Description: "x"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoveAndReorder(t *testing.T) {
	s := NewSet([]FileDescriptor{
		{FilePath: "/a", Description: "a"},
		{FilePath: "/b", Description: "b"},
		{FilePath: "/c", Description: "c"},
	})

	require.NoError(t, s.Reorder([]string{"/c", "/a", "/b"}))
	assert.Equal(t, []string{"/c", "/a", "/b"}, paths(s))

	assert.ErrorIs(t, s.Reorder([]string{"/c", "/c", "/b"}), ErrReorder)
	assert.ErrorIs(t, s.Reorder([]string{"/c"}), ErrReorder)

	require.NoError(t, s.Remove("/a"))
	assert.Equal(t, []string{"/c", "/b"}, paths(s))
	assert.ErrorIs(t, s.Remove("/a"), ErrNotFound)
}

func TestNewSetDropsDuplicates(t *testing.T) {
	s := NewSet([]FileDescriptor{
		{FilePath: "/a", Description: "first"},
		{FilePath: "/a", Description: "second"},
	})

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].Description)
	assert.Equal(t, "cat /a", list[0].RefreshCmd)
}

func TestDescriptorJSON(t *testing.T) {
	raw := `{"filePath":"/etc/nginx/nginx.conf","description":"nginx","refreshCmd":"systemctl reload nginx",
		"remoteInfo":{"host":"web1","port":2222,"username":"ops","password":"pw"}}`

	var d FileDescriptor
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.True(t, d.IsRemote())
	assert.Equal(t, "web1:2222", d.RemoteInfo.Address())
	assert.NoError(t, d.Validate())

	local, err := json.Marshal(FileDescriptor{FilePath: "/etc/hosts", Description: "hosts"})
	require.NoError(t, err)
	assert.NotContains(t, string(local), "remoteInfo")
}

func TestScanCommon(t *testing.T) {
	home := t.TempDir()
	etc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, ".zshrc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".vimrc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".bashrc"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(etc, "conf.d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "conf.d", "site.conf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(etc, "conf.d", "notes.txt"), []byte("x"), 0o644))

	candidates := []Candidate{
		{Pattern: "~/.bashrc", Description: "Bash config"},
		{Pattern: "~/.zshrc", Description: "Zsh config"},
		{Pattern: "~/.vimrc", Description: "Vim config"},
		{Pattern: "~/.tmux.conf", Description: "Tmux config"},
		{Pattern: filepath.Join(etc, "conf.d", "*.conf"), Description: "Nginx site"},
	}
	managed := NewSet([]FileDescriptor{{FilePath: "~/.bashrc", Description: "bash"}})
	unreadable := filepath.Join(home, ".vimrc")
	readable := func(p string) bool { return p != unreadable }

	found := ScanCommon(home, candidates, readable, managed)

	require.Len(t, found, 2)
	assert.Equal(t, "~/.zshrc", found[0].FilePath)
	assert.Equal(t, "source ~/.zshrc", found[0].RefreshCmd)
	assert.Equal(t, filepath.Join(etc, "conf.d", "site.conf"), found[1].FilePath)
	assert.Equal(t, "Nginx site (site.conf)", found[1].Description)
}

func paths(s *Set) []string {
	var out []string
	for _, d := range s.List() {
		out = append(out, d.FilePath)
	}
	return out
}
