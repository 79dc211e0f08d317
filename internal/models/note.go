package models

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	interrors "github.com/streed/snap-notes/internal/errors"
)

// Note is the persisted artifact for one capture: YAML frontmatter carrying
// the raw extraction and peer outputs, followed by the composed Markdown body.
type Note struct {
	ID             string                `yaml:"id" json:"id"`
	Title          string                `yaml:"title" json:"title"`
	Created        time.Time             `yaml:"created" json:"created"`
	Tags           []string              `yaml:"tags,omitempty" json:"tags"`
	Image          string                `yaml:"image" json:"image"`
	Source         string                `yaml:"source,omitempty" json:"source,omitempty"`
	Region         *Region               `yaml:"region,omitempty" json:"region,omitempty"`
	OCRText        string                `yaml:"ocr_text,omitempty" json:"ocr_text,omitempty"`
	VLMDescription string                `yaml:"vlm_description,omitempty" json:"vlm_description,omitempty"`
	Peers          map[string]PeerResult `yaml:"peers,omitempty" json:"peers,omitempty"`

	Body string `yaml:"-" json:"body"`
	// Path is the absolute location of the note file once persisted.
	Path string `yaml:"-" json:"path,omitempty"`
}

var (
	frontmatterOpen  = []byte("---\n")
	frontmatterClose = []byte("\n---\n")
)

// Marshal renders the note file: frontmatter then body.
func (n *Note) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(frontmatterOpen)
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(n); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(n.Body)
	if !strings.HasSuffix(n.Body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ParseNote reads a note file. Files without frontmatter, or without an id,
// are reported as ErrMalformedNote.
func ParseNote(data []byte) (*Note, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, frontmatterOpen) {
		return nil, fmt.Errorf("%w: missing frontmatter", interrors.ErrMalformedNote)
	}

	rest := data[len(frontmatterOpen):]
	end := bytes.Index(rest, frontmatterClose)
	var yamlData, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte("---\n")):
		body = rest[4:]
	case end >= 0:
		yamlData = rest[:end]
		body = rest[end+len(frontmatterClose):]
	default:
		return nil, fmt.Errorf("%w: frontmatter has no closing delimiter", interrors.ErrMalformedNote)
	}

	var note Note
	if err := yaml.Unmarshal(yamlData, &note); err != nil {
		return nil, fmt.Errorf("%w: %v", interrors.ErrMalformedNote, err)
	}
	if note.ID == "" {
		return nil, fmt.Errorf("%w: frontmatter has no id", interrors.ErrMalformedNote)
	}
	for name, res := range note.Peers {
		res.Peer = name
		note.Peers[name] = res
	}
	note.Created = note.Created.UTC()
	note.Body = strings.TrimPrefix(string(body), "\n")
	return &note, nil
}

// UserNotesHeading opens the free-form section a composed note leaves for
// the user. Everything above it is generated.
const UserNotesHeading = "## Notes"

// SearchableText is what the index tokenizes: the title, the extracted text,
// what the peers returned and whatever the user wrote. Generated headings,
// markers and metadata lines are left out so they never match a query.
func (n *Note) SearchableText() string {
	parts := []string{n.Title}
	user := n.UserContent()
	if user != "" {
		parts = append(parts, user)
	}
	if n.OCRText != "" && !strings.Contains(user, n.OCRText) {
		parts = append(parts, n.OCRText)
	}
	if n.VLMDescription != "" && !strings.Contains(user, n.VLMDescription) {
		parts = append(parts, n.VLMDescription)
	}

	names := make([]string, 0, len(n.Peers))
	for name := range n.Peers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if res := n.Peers[name]; res.OK() {
			parts = appendPayloadText(parts, res.Payload)
		}
	}
	return strings.Join(parts, "\n")
}

// UserContent returns the text under the last UserNotesHeading. A body
// without the heading was not composed by snap-notes and counts in full.
func (n *Note) UserContent() string {
	heading := "\n" + UserNotesHeading + "\n"
	body := "\n" + n.Body
	if i := strings.LastIndex(body, heading); i >= 0 {
		return strings.TrimSpace(body[i+len(heading):])
	}
	return strings.TrimSpace(n.Body)
}

// appendPayloadText collects the string and number leaves of a peer payload
// in key order.
func appendPayloadText(parts []string, v any) []string {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			parts = append(parts, s)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = appendPayloadText(parts, val[k])
		}
	case []any:
		for _, item := range val {
			parts = appendPayloadText(parts, item)
		}
	case nil, bool:
	default:
		parts = append(parts, fmt.Sprint(val))
	}
	return parts
}

// NormalizeTags trims, lowercases and dedupes tags, returning them sorted.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IndexEntry is the index's projection of a Note. It can always be
// recomputed from the note file.
type IndexEntry struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Path    string    `json:"path"`
	Image   string    `json:"image"`
	Created time.Time `json:"created"`
	Tags    []string  `json:"tags"`
	Text    string    `json:"-"`
	Snippet string    `json:"snippet,omitempty"`
	Score   float64   `json:"score"`
}

// EntryFromNote projects a persisted note into an index entry.
func EntryFromNote(n *Note) IndexEntry {
	return IndexEntry{
		ID:      n.ID,
		Title:   n.Title,
		Path:    n.Path,
		Image:   n.Image,
		Created: n.Created.UTC(),
		Tags:    NormalizeTags(n.Tags),
		Text:    n.SearchableText(),
	}
}
