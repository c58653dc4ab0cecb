package prompt

import (
	"regexp"
	"sort"
	"strings"
)

// SecretType names a kind of credential pasted into a question
type SecretType string

const (
	SecretTypeAnthropicKey SecretType = "anthropic_key"
	SecretTypeOpenAIKey    SecretType = "openai_key"
	SecretTypeAWSKey       SecretType = "aws_key"
	SecretTypeGitHubToken  SecretType = "github_token"
	SecretTypeStripeKey    SecretType = "stripe_key"
	SecretTypeJWT          SecretType = "jwt"
	SecretTypePrivateKey   SecretType = "private_key"
	SecretTypeDatabaseURL  SecretType = "database_url"
	SecretTypePassword     SecretType = "password"
)

const secretPlaceholder = "[SECRET_REDACTED]"

// SecretDetection is one credential match, as a byte range of the input
type SecretDetection struct {
	Type  SecretType
	Value string
	Start int
	End   int
}

// Only vendor-prefixed or explicitly labelled values are matched; long
// opaque strings alone are not treated as secrets.
var secretDetectors = []struct {
	secretType SecretType
	pattern    *regexp.Regexp
}{
	{SecretTypeAnthropicKey, regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{20,}`)},
	{SecretTypeOpenAIKey, regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9_\-]{20,}`)},
	{SecretTypeAWSKey, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{SecretTypeGitHubToken, regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{SecretTypeStripeKey, regexp.MustCompile(`\b[sr]k_(?:live|test)_[0-9a-zA-Z]{24,}\b`)},
	{SecretTypeJWT, regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)},
	{SecretTypePrivateKey, regexp.MustCompile(`-----BEGIN (?:[A-Z]+ )?PRIVATE KEY-----`)},
	{SecretTypeDatabaseURL, regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb|redis)://[^\s'"]+:[^\s'"]+@[^\s'"]+`)},
	{SecretTypePassword, regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{6,}['"]?`)},
}

// DetectSecrets returns the non-overlapping credential matches in text, ordered by position
func DetectSecrets(text string) []SecretDetection {
	var found []SecretDetection
	for _, d := range secretDetectors {
		for _, loc := range d.pattern.FindAllStringIndex(text, -1) {
			if secretOverlaps(found, loc[0], loc[1]) {
				continue
			}
			found = append(found, SecretDetection{
				Type:  d.secretType,
				Value: text[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Start < found[j].Start })
	return found
}

// RedactSecrets replaces every credential match with a placeholder
func RedactSecrets(text string) string {
	detections := DetectSecrets(text)
	if len(detections) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, d := range detections {
		b.WriteString(text[last:d.Start])
		b.WriteString(secretPlaceholder)
		last = d.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Sanitize strips credentials and then personal data from text
func Sanitize(text string) string {
	return RedactPII(RedactSecrets(text))
}

func secretOverlaps(found []SecretDetection, start, end int) bool {
	for _, d := range found {
		if start < d.End && d.Start < end {
			return true
		}
	}
	return false
}
