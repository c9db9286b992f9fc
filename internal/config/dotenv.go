// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// DotEnvFile is the name of the env file looked up in the base directory.
const DotEnvFile = ".env"

// readDotEnv parses a .env file. A missing file yields (nil, false, nil).
func readDotEnv(path string) (map[string]string, bool, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return values, true, nil
}

// layeredLookup resolves keys from primary first and falls back to file values.
// A key present in primary wins even when its value is empty.
func layeredLookup(primary LookupFunc, file map[string]string) LookupFunc {
	if len(file) == 0 {
		return primary
	}
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}
}
