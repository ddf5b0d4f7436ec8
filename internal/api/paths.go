package api

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/forPelevin/vidsum/internal/ports/adapters/youtube"
)

var errOutsideOutput = errors.New("local paths must point inside the output directory")

// localPath resolves a client-supplied file path against OutputDir. Relative
// paths are taken from OutputDir; anything that lands outside it, directly or
// through a symlink, is rejected. An empty path stays empty.
func (s *Server) localPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if s.d.OutputDir == "" {
		return "", errOutsideOutput
	}
	root, err := filepath.Abs(s.d.OutputDir)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", errOutsideOutput
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		realRoot := root
		if r, err := filepath.EvalSymlinks(root); err == nil {
			realRoot = r
		}
		if !within(realRoot, real) {
			return "", errOutsideOutput
		}
	}
	return p, nil
}

// mediaSource lets remote sources through and confines local ones.
func (s *Server) mediaSource(src string) (string, error) {
	src = strings.TrimSpace(src)
	if youtube.IsYouTubeURL(src) || strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src, nil
	}
	return s.localPath(src)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
