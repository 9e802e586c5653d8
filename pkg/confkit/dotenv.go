package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

const (
	envFile      = "ENV_FILE"
	envNoDotenv  = "NO_DOTENV"
	envOverload  = "DOTENV_OVERLOAD"
	maxWalkDepth = 8
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads .env into the process environment on first call.
//
// ENV_FILE names the file explicitly. Otherwise every .env between the working
// directory and the project root is loaded, nearest first. Variables already
// set win unless DOTENV_OVERLOAD=1. NO_DOTENV=1 disables loading.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv(envNoDotenv) == "1" {
		return
	}
	load := godotenv.Load
	if os.Getenv(envOverload) == "1" {
		load = godotenv.Overload
	}
	if p := os.Getenv(envFile); p != "" {
		_ = load(p)
		return
	}
	wd, err := os.Getwd()
	if err != nil {
		_ = load(".env")
		return
	}
	walkUp(wd, func(dir string) bool {
		if p := filepath.Join(dir, ".env"); fileExists(p) {
			_ = load(p)
		}
		return isProjectRoot(dir)
	})
}
