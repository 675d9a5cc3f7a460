package attachments

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
)

// Attachment is an opaque blob delivered inline as a data URI.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// data:image/png;base64,iVBORw...
var dataURIPattern = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

// SaveAll decodes each attachment into <baseDir>/<taskID>/. Malformed
// attachments are skipped with a log line; they degrade the input but
// never fail the run.
func SaveAll(baseDir, taskID string, atts []Attachment) ([]string, error) {
	dir := filepath.Join(baseDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachments dir: %w", err)
	}

	var saved []string
	for _, att := range atts {
		m := dataURIPattern.FindStringSubmatch(att.URL)
		if m == nil {
			log.Printf("Skipping attachment %q: not a base64 data URI", att.Name)
			continue
		}
		data, err := base64.StdEncoding.DecodeString(m[2])
		if err != nil {
			log.Printf("Skipping attachment %q: base64 decode failed: %v", att.Name, err)
			continue
		}
		path := filepath.Join(dir, filepath.Base(att.Name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Printf("Skipping attachment %q: write failed: %v", att.Name, err)
			continue
		}
		saved = append(saved, path)
	}
	return saved, nil
}
