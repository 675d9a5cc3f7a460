package scanner

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Finding is one potential secret located in a scanned file.
type Finding struct {
	Type  string
	Match string
	Line  int
}

type secretPattern struct {
	re   *regexp.Regexp
	kind string
}

var secretPatterns = []secretPattern{
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']([a-zA-Z0-9_\-]{20,})["']`), "API Key"},
	{regexp.MustCompile(`(?i)(secret[_-]?key|secretkey)\s*[:=]\s*["']([a-zA-Z0-9_\-]{20,})["']`), "Secret Key"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']([^"']{8,})["']`), "Password"},
	{regexp.MustCompile(`(?i)(token)\s*[:=]\s*["']([a-zA-Z0-9_\-]{20,})["']`), "Token"},
	{regexp.MustCompile(`(?i)(github[_-]?token)\s*[:=]\s*["']([a-zA-Z0-9_\-]{20,})["']`), "GitHub Token"},
	{regexp.MustCompile(`(?i)(openai[_-]?api[_-]?key)\s*[:=]\s*["']([a-zA-Z0-9_\-]{20,})["']`), "OpenAI API Key"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "OpenAI API Key (sk- prefix)"},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36,}`), "GitHub Personal Access Token"},
	{regexp.MustCompile(`gho_[a-zA-Z0-9]{36,}`), "GitHub OAuth Token"},
	{regexp.MustCompile(`ghs_[a-zA-Z0-9]{36,}`), "GitHub App Token"},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-.]{20,}`), "Bearer Token"},
	{regexp.MustCompile(`(?i)(aws[_-]?access[_-]?key[_-]?id)\s*[:=]\s*["']([A-Z0-9]{20})["']`), "AWS Access Key"},
	{regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']([a-zA-Z0-9/+=]{40})["']`), "AWS Secret Key"},
	{regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----`), "Private Key"},
	{regexp.MustCompile(`(?i)(database[_-]?url|db[_-]?url)\s*[:=]\s*["']([^"']+)["']`), "Database URL"},
}

// Things that look like secrets but are placeholders.
var whitelistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)example\.com`),
	regexp.MustCompile(`(?i)your-.*-here`),
	regexp.MustCompile(`(?i)placeholder`),
	regexp.MustCompile(`(?i)dummy`),
	regexp.MustCompile(`(?i)test[_-]?key`),
	regexp.MustCompile(`(?i)fake[_-]?token`),
	regexp.MustCompile(`(?i)xxx+`),
	regexp.MustCompile(`\*\*\*+`),
}

var scannableExtensions = map[string]bool{
	".html": true, ".js": true, ".css": true, ".py": true, ".json": true,
	".yaml": true, ".yml": true, ".env": true, ".txt": true, ".md": true,
}

// Scanner scans generated artifacts for leaked credentials before they
// are published.
type Scanner struct{}

func New() *Scanner {
	return &Scanner{}
}

// ScanFile scans one file line by line. Comment lines are skipped.
func (s *Scanner) ScanFile(path string) []Finding {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("Error scanning %s: %v", path, err)
		return nil
	}
	defer f.Close()

	var findings []Finding
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		for _, p := range secretPatterns {
			for _, match := range p.re.FindAllString(line, -1) {
				if isWhitelisted(match) {
					continue
				}
				findings = append(findings, Finding{Type: p.kind, Match: match, Line: lineNum})
			}
		}
	}
	if err := sc.Err(); err != nil {
		log.Printf("Error scanning %s: %v", path, err)
	}
	return findings
}

// ScanDirectory walks a directory and scans every file with a known
// text extension. Keys are paths relative to the directory.
func (s *Scanner) ScanDirectory(dir string) map[string][]Finding {
	results := make(map[string][]Finding)
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !scannableExtensions[filepath.Ext(path)] {
			return nil
		}
		if findings := s.ScanFile(path); len(findings) > 0 {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				rel = path
			}
			results[rel] = findings
		}
		return nil
	})
	return results
}

// ScanAndReport scans a directory and logs every finding with the
// secret masked. Returns true when the directory is clean.
func (s *Scanner) ScanAndReport(dir string) (bool, map[string][]Finding) {
	log.Printf("Scanning %s for secrets...", dir)
	results := s.ScanDirectory(dir)
	if len(results) == 0 {
		log.Println("No secrets detected")
		return true, nil
	}
	log.Printf("Found potential secrets in %d file(s):", len(results))
	for path, findings := range results {
		log.Printf("  %s:", path)
		for _, f := range findings {
			log.Printf("    Line %d: %s - %s", f.Line, f.Type, MaskSecret(f.Match))
		}
	}
	return false, results
}

// Scan is the pipeline-facing entry point: scan, log, and flatten the
// findings into the text stored on the task record.
func (s *Scanner) Scan(dir string) (bool, string) {
	clean, results := s.ScanAndReport(dir)
	return clean, Summarize(results)
}

// Summarize flattens findings into the text stored on the task record.
func Summarize(results map[string][]Finding) string {
	if len(results) == 0 {
		return ""
	}
	var parts []string
	for path, findings := range results {
		for _, f := range findings {
			parts = append(parts, fmt.Sprintf("%s: %s (line %d)", path, f.Type, f.Line))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func isWhitelisted(text string) bool {
	for _, re := range whitelistPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// MaskSecret hides the middle of a matched secret so findings can be
// logged safely.
func MaskSecret(text string) string {
	if len(text) <= 8 {
		return strings.Repeat("*", len(text))
	}
	return text[:4] + strings.Repeat("*", len(text)-8) + text[len(text)-4:]
}
