package confkit

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// envRoot pins the project root, for binaries running outside the source tree.
const envRoot = "ATLAS_ROOT"

// ProjectRoot locates the directory holding go.mod or .git. ATLAS_ROOT wins
// when set; otherwise the working directory and then this source file are
// searched upwards.
func ProjectRoot() (string, error) {
	if root := os.Getenv(envRoot); root != "" {
		return filepath.Clean(root), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return ".", fmt.Errorf("getwd: %w", err)
	}
	if root, ok := findRoot(wd); ok {
		return root, nil
	}
	if _, file, _, ok := runtime.Caller(0); ok {
		if root, ok := findRoot(filepath.Dir(file)); ok {
			return root, nil
		}
	}
	return wd, nil
}

// ProjectPath joins the project root with rel.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MustProjectPath is ProjectPath that panics on failure.
func MustProjectPath(rel string) string {
	p, err := ProjectPath(rel)
	if err != nil {
		panic(err)
	}
	return p
}

func findRoot(start string) (string, bool) {
	var root string
	walkUp(start, func(dir string) bool {
		if isProjectRoot(dir) {
			root = dir
			return true
		}
		return false
	})
	return root, root != ""
}

// walkUp calls visit on start and its parents until visit returns true, the
// filesystem root is reached or maxWalkDepth directories were seen.
func walkUp(start string, visit func(dir string) bool) {
	dir := start
	for i := 0; i < maxWalkDepth; i++ {
		if visit(dir) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func isProjectRoot(dir string) bool {
	return fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git"))
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
