// Package obo parses the OBO flat-file ontology format into term records
// and typed parent relationships.
package obo

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Tags with structural meaning. Every other tag is carried opaquely in the
// term's attribute map.
const (
	tagID           = "id"
	tagName         = "name"
	tagIsA          = "is_a"
	tagRelationship = "relationship"
	tagIsObsolete   = "is_obsolete"
)

const termStanza = "[Term]"

// Term is one parsed [Term] stanza. Attributes holds every tag except id,
// name and the relationship tags, keyed by tag name; repeatable tags (synonym,
// xref, ...) accumulate in order of appearance.
type Term struct {
	ID         string
	Name       string
	Attributes map[string][]string
}

// Relationship is a directed, kind-labeled edge from a more specific term
// (child) to a more general one (parent).
type Relationship struct {
	ChildID  string
	ParentID string
	Kind     string
}

// Warning records a non-fatal problem found while parsing. Warnings never
// abort a parse; the offending stanza or line is skipped.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// ParseResult is everything extracted from one OBO document.
type ParseResult struct {
	// Header holds the tags that precede the first stanza
	// (format-version, data-version, ...).
	Header map[string][]string

	Terms         []Term
	Relationships []Relationship
	Warnings      []Warning

	// ObsoleteCount is the number of [Term] stanzas skipped because they
	// were flagged is_obsolete.
	ObsoleteCount int
}

// Parser reads OBO documents. Parsing is a pure function of the input; the
// parser itself only carries configuration.
type Parser struct {
	log *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(p *Parser) {
		if log != nil {
			p.log = log
		}
	}
}

// NewParser creates an OBO parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile parses the OBO document at path.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening obo file: %w", err)
	}
	defer f.Close()

	res, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return res, nil
}

// Parse parses one OBO document. Malformed stanzas and lines are skipped
// with a warning; only a read failure aborts.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	res := &ParseResult{Header: make(map[string][]string)}

	scanner := bufio.NewScanner(r)
	// Definition and synonym lines routinely exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		stanzaType  string
		stanzaLine  int
		stanzaAttrs map[string][]string
		lineNum     int
	)

	flush := func() {
		if stanzaType == termStanza {
			p.flushTerm(res, stanzaAttrs, stanzaLine)
		}
		stanzaType = ""
		stanzaAttrs = nil
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			flush()
			stanzaType = line
			stanzaLine = lineNum
			stanzaAttrs = make(map[string][]string)
			continue
		}

		tag, value, ok := strings.Cut(line, ": ")
		if !ok {
			p.log.Debug("skipping unrecognized obo line", "line", lineNum)
			continue
		}

		// Everything after " ! " is a human-readable comment.
		if idx := strings.Index(value, " ! "); idx >= 0 {
			value = strings.TrimRight(value[:idx], " \t")
		}

		if stanzaType == "" {
			res.Header[tag] = append(res.Header[tag], value)
			continue
		}
		stanzaAttrs[tag] = append(stanzaAttrs[tag], value)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading obo document: %w", err)
	}
	return res, nil
}

// flushTerm converts one accumulated [Term] stanza into a Term plus its
// parent relationships, or records a warning when the stanza is unusable.
func (p *Parser) flushTerm(res *ParseResult, attrs map[string][]string, stanzaLine int) {
	ids := attrs[tagID]
	if len(ids) == 0 || ids[0] == "" {
		p.warn(res, stanzaLine, "term stanza without an id")
		return
	}
	id := ids[0]

	if obs := attrs[tagIsObsolete]; len(obs) > 0 && obs[0] == "true" {
		res.ObsoleteCount++
		p.log.Debug("skipping obsolete term", "id", id)
		return
	}

	term := Term{ID: id, Attributes: make(map[string][]string)}
	if names := attrs[tagName]; len(names) > 0 {
		term.Name = names[0]
	}
	for tag, values := range attrs {
		switch tag {
		case tagID, tagName, tagIsA, tagRelationship:
			continue
		}
		term.Attributes[tag] = values
	}
	res.Terms = append(res.Terms, term)

	for _, parent := range attrs[tagIsA] {
		if parent == "" {
			p.warn(res, stanzaLine, fmt.Sprintf("term %s: empty is_a target", id))
			continue
		}
		res.Relationships = append(res.Relationships, Relationship{
			ChildID:  id,
			ParentID: parent,
			Kind:     tagIsA,
		})
	}
	for _, rel := range attrs[tagRelationship] {
		fields := strings.Fields(rel)
		if len(fields) < 2 {
			p.warn(res, stanzaLine, fmt.Sprintf("term %s: malformed relationship %q", id, rel))
			continue
		}
		res.Relationships = append(res.Relationships, Relationship{
			ChildID:  id,
			ParentID: fields[1],
			Kind:     fields[0],
		})
	}
}

func (p *Parser) warn(res *ParseResult, line int, msg string) {
	res.Warnings = append(res.Warnings, Warning{Line: line, Message: msg})
	p.log.Warn("obo parse warning", "line", line, "detail", msg)
}
