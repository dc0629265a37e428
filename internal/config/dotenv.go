package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// DefaultDotEnvFile is read from the working directory at startup.
const DefaultDotEnvFile = ".env"

// LoadDotEnv exports the variables of each existing file into the process
// environment so that PIIANON_* overrides can live next to the binary.
// Missing files are skipped and variables already set are never replaced.
// It returns the files that were loaded.
func LoadDotEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{DefaultDotEnvFile}
	}
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, errors.Wrap(err, errors.CodeConfigLoad, "failed to load env file").WithDetail(p)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

//Personal.AI order the ending
