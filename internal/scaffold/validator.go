package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting checks if warren.yml, runtimes.json, or agents/ already
// exist. Returns an error if they do, nil otherwise.
func CheckExisting() error {
	var existingFiles []string

	if _, err := os.Stat("warren.yml"); err == nil {
		existingFiles = append(existingFiles, "warren.yml")
	}
	if _, err := os.Stat("runtimes.json"); err == nil {
		existingFiles = append(existingFiles, "runtimes.json")
	}
	if info, err := os.Stat("agents"); err == nil && info.IsDir() {
		existingFiles = append(existingFiles, "agents/")
	}

	if len(existingFiles) > 0 {
		errMsg := "project already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'warren init --force' to reinitialize (this will overwrite existing configuration)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
