package cage

import (
	"os"
	"path/filepath"
	"strings"
)

// enumerateFiles lists regular files directly under root (or, when
// recursive is true, the full subtree), filtered by an optional
// substring pattern. Mirrors the original's read_dir-based collection,
// generalized to walk recursively.
func enumerateFiles(root string, pattern string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	walk := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if pattern != "" && !strings.Contains(d.Name(), pattern) {
			return nil
		}
		files = append(files, path)
		return nil
	}
	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, err
	}
	return files, nil
}

// enumerateEncryptedFiles is enumerateFiles restricted to paths the
// configured extension set classifies as encrypted.
func enumerateEncryptedFiles(root, pattern string, recursive bool, cfg encryptedFileClassifier) ([]string, error) {
	all, err := enumerateFiles(root, pattern, recursive)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range all {
		if cfg.IsEncryptedFile(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// encryptedFileClassifier is the subset of config.AgeConfig enumerateEncryptedFiles needs.
type encryptedFileClassifier interface {
	IsEncryptedFile(path string) bool
}
