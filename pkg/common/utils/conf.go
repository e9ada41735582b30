package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DecodeConfFile fills v from a JSON file, or a TOML file when the path
// ends in .toml.
func DecodeConfFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err = toml.Decode(string(data), v)
		return err
	}
	return json.Unmarshal(data, v)
}
