package catalog

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CommonCandidates are the well-known configuration files offered when the
// managed list is being filled.
var CommonCandidates = []Candidate{
	{Pattern: "~/.bashrc", Description: "Bash config"},
	{Pattern: "~/.zshrc", Description: "Zsh config"},
	{Pattern: "~/.vimrc", Description: "Vim config"},
	{Pattern: "~/.tmux.conf", Description: "Tmux config"},
	{Pattern: "~/.gitconfig", Description: "Git config"},
	{Pattern: "~/.ssh/config", Description: "SSH client config"},
	{Pattern: "/etc/hosts", Description: "Hosts"},
	{Pattern: "/etc/nginx/nginx.conf", Description: "Nginx main config"},
	{Pattern: "/etc/nginx/conf.d/*.conf", Description: "Nginx site"},
	{Pattern: "/etc/nginx/sites-enabled/*", Description: "Nginx site"},
}

// Candidate is a path or glob pattern worth suggesting.
type Candidate struct {
	Pattern     string
	Description string
}

// ReadableFunc reports whether a path can be opened for reading.
type ReadableFunc func(path string) bool

// ScanCommon returns descriptors for the candidates that exist, are readable
// and are not managed yet. Probe failures only exclude a candidate.
func ScanCommon(home string, candidates []Candidate, readable ReadableFunc, managed *Set) []FileDescriptor {
	var found []FileDescriptor
	seen := map[string]bool{}

	for _, c := range candidates {
		pattern := c.Pattern
		display := func(p string) string { return p }
		if strings.HasPrefix(pattern, "~/") {
			pattern = filepath.Join(home, pattern[2:])
			display = func(p string) string {
				rel, err := filepath.Rel(home, p)
				if err != nil || strings.HasPrefix(rel, "..") {
					return p
				}
				return "~/" + filepath.ToSlash(rel)
			}
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			continue
		}
		for _, match := range matches {
			path := display(match)
			if seen[path] || managed.Contains(path) || managed.Contains(match) {
				continue
			}
			if !readable(match) {
				continue
			}
			seen[path] = true
			desc := c.Description
			if strings.ContainsAny(c.Pattern, "*?[{") {
				desc = desc + " (" + filepath.Base(match) + ")"
			}
			found = append(found, normalize(FileDescriptor{FilePath: path, Description: desc}))
		}
	}
	return found
}
