package env

import (
	"os"

	"github.com/joho/godotenv"
)

// envFiles are the locations searched for a .env file, relative to the
// working directory of the binary.
var envFiles = []string{
	".env",          // Current directory
	"../../.env",    // From cmd/prdbuilder to project root
	"../../../.env", // Fallback for deeper nesting
}

func GetEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found into the process environment.
// Variables already set in the environment win. It returns the loaded path,
// or an empty string when no file was found (containers inject env directly).
func SetupEnvFile() string {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err == nil {
			return envFile
		}
	}
	return ""
}
