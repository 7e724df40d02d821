package daemon

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const reloadMarkerName = "reload_request.json"

func ReloadMarkerPath(stateDir string) string {
	return filepath.Join(stateDir, reloadMarkerName)
}

// RequestReload drops the marker the next cycle consumes.
func RequestReload(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	raw, _ := json.Marshal(map[string]bool{"reload": true})
	return os.WriteFile(ReloadMarkerPath(stateDir), raw, 0o644)
}

// ConsumeReload removes the marker and reports whether one was present.
func ConsumeReload(stateDir string) (bool, error) {
	err := os.Remove(ReloadMarkerPath(stateDir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
