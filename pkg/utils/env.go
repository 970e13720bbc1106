package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnvFile loads the first .env found in dirs. Variables already present in the
// environment win over the file.
func LoadEnvFile(dirs ...string) string {
	for _, dir := range dirs {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logrus.Warnf("[CONFIG] failed to load %s: %v", path, err)
			continue
		}
		return path
	}
	return ""
}
