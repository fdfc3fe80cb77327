// Package prompt loads versioned policy and template documents and
// composes the system prompt handed to the language model.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.md
var defaultFS embed.FS

var versionPattern = regexp.MustCompile(`^v\d+$`)

const (
	// Placeholders are the only substitutions Format performs. Any other
	// curly-brace text in a template survives unchanged.
	ContextPlaceholder = "{context}"
	QueryPlaceholder   = "{query}"

	fallbackVersion = "v1"
)

// Frontmatter is the optional YAML header of a prompt file.
type Frontmatter struct {
	Type    string   `yaml:"type"`
	Version string   `yaml:"version"`
	Lang    string   `yaml:"lang"`
	Inputs  []string `yaml:"inputs"`
}

// Composer loads one policy + template pair and caches the composition.
type Composer struct {
	fsys    fs.FS
	version string

	mu       sync.Mutex
	composed string
}

// NewComposer creates a composer over fsys (nil uses the embedded
// defaults). version must match ^v\d+$.
func NewComposer(fsys fs.FS, version string) (*Composer, error) {
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("invalid prompt version %q: must match ^v\\d+$", version)
	}
	if fsys == nil {
		sub, err := fs.Sub(defaultFS, "defaults")
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded prompts: %w", err)
		}
		fsys = sub
	}
	return &Composer{fsys: fsys, version: version}, nil
}

// Compose returns policy + blank line + template for the configured
// version, falling back to v1 when the version is absent. The result is
// cached for the lifetime of the composer.
func (c *Composer) Compose() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.composed != "" {
		return c.composed, nil
	}

	policy, err := c.loadBody("policy")
	if err != nil {
		return "", err
	}
	template, err := c.loadBody("template")
	if err != nil {
		return "", err
	}

	if !strings.Contains(template, ContextPlaceholder) || !strings.Contains(template, QueryPlaceholder) {
		return "", fmt.Errorf("prompt template %s is missing the %s or %s placeholder",
			c.version, ContextPlaceholder, QueryPlaceholder)
	}

	c.composed = policy + "\n\n" + template
	return c.composed, nil
}

// loadBody reads kind.version.md, falling back to v1; a missing v1
// fails loudly.
func (c *Composer) loadBody(kind string) (string, error) {
	data, err := fs.ReadFile(c.fsys, fmt.Sprintf("%s.%s.md", kind, c.version))
	if err != nil {
		if c.version == fallbackVersion {
			return "", fmt.Errorf("prompt %s %s not found: %w", kind, c.version, err)
		}
		data, err = fs.ReadFile(c.fsys, fmt.Sprintf("%s.%s.md", kind, fallbackVersion))
		if err != nil {
			return "", fmt.Errorf("prompt %s %s not found and no %s fallback: %w",
				kind, c.version, fallbackVersion, err)
		}
	}
	_, body, err := splitFrontmatter(string(data))
	if err != nil {
		return "", fmt.Errorf("prompt %s %s: %w", kind, c.version, err)
	}
	return strings.TrimSpace(body), nil
}

// splitFrontmatter separates an optional leading `---` YAML block from
// the body. Files without frontmatter pass through whole.
func splitFrontmatter(content string) (*Frontmatter, string, error) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content, nil
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return nil, content, nil
	}
	header := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	return &fm, body, nil
}

// Format substitutes only the {context} and {query} placeholders. There
// is deliberately no generic interpolation: content containing other
// curly-brace text must survive untouched.
func Format(composed, context, query string) string {
	out := strings.ReplaceAll(composed, ContextPlaceholder, context)
	return strings.ReplaceAll(out, QueryPlaceholder, query)
}
