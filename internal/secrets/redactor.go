// Package secrets detects and masks credentials in chunk text before it
// leaves the process for the embedding service.
package secrets

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// ErrDetectorInit indicates the gitleaks rule set failed to load.
var ErrDetectorInit = errors.New("secret detector init failed")

// minSecretLen filters out degenerate matches that would mangle ordinary
// text when replaced by value.
const minSecretLen = 4

// Redactor scans text with the gitleaks default rule set and masks every
// finding. Construct one and share it: compiling the rules is expensive and
// the detector is safe for concurrent scans.
type Redactor struct {
	detector *detect.Detector
}

// NewRedactor loads the default gitleaks rules.
func NewRedactor() (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorInit, err)
	}
	return &Redactor{detector: d}, nil
}

// Redact returns text with every detected secret replaced by a
// [REDACTED:rule-id] marker, plus the number of distinct secrets masked.
// Replacement is by value, so a secret repeated across the text is masked
// everywhere it appears.
func (r *Redactor) Redact(text string) (string, int) {
	findings := r.detector.DetectString(text)
	if len(findings) == 0 {
		return text, 0
	}

	markers := make(map[string]string, len(findings))
	for _, f := range findings {
		if len(f.Secret) < minSecretLen {
			continue
		}
		markers[f.Secret] = fmt.Sprintf("[REDACTED:%s]", f.RuleID)
	}

	return replaceSecrets(text, markers)
}

// replaceSecrets masks each secret by value, longest first so a secret
// embedded in a longer one is not double-masked.
func replaceSecrets(text string, markers map[string]string) (string, int) {
	secrets := make([]string, 0, len(markers))
	for s := range markers {
		secrets = append(secrets, s)
	}
	sort.Slice(secrets, func(i, j int) bool {
		if len(secrets[i]) != len(secrets[j]) {
			return len(secrets[i]) > len(secrets[j])
		}
		return secrets[i] < secrets[j]
	})

	n := 0
	for _, s := range secrets {
		if !strings.Contains(text, s) {
			continue
		}
		text = strings.ReplaceAll(text, s, markers[s])
		n++
	}
	return text, n
}
