package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Identifier length bounds, in characters, after trimming.
const (
	MinIdentifierLength = 15
	MaxIdentifierLength = 64
)

// LineOutcome classifies one scan line.
type LineOutcome string

const (
	OutcomeMatch        LineOutcome = "match"
	OutcomeUnregistered LineOutcome = "unregistered"
	OutcomeDuplicate    LineOutcome = "duplicate"
	OutcomeInvalid      LineOutcome = "invalid"
)

// Accepted reports whether the outcome produces a scanned item.
func (o LineOutcome) Accepted() bool {
	return o == OutcomeMatch || o == OutcomeUnregistered
}

// NormalizeIdentifier trims surrounding whitespace. The rest must be
// between MinIdentifierLength and MaxIdentifierLength printable characters.
func NormalizeIdentifier(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(id)
	if n < MinIdentifierLength || n > MaxIdentifierLength || !utf8.ValidString(id) {
		return id, ErrInvalidIdentifier
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return id, ErrInvalidIdentifier
	}
	return id, nil
}

// Classification is the outcome for one identifier.
type Classification struct {
	IMEI    string
	Outcome LineOutcome
	// Item is the snapshot row that a match flips; nil otherwise.
	Item *SnapshotItem
}

// ScanClassifier applies the scan rule against a fixed snapshot and the set
// of identifiers already scanned in the session. Accepted identifiers join the
// scanned set, so a later repeat in the same batch is a duplicate.
type ScanClassifier struct {
	snapshot map[string]*SnapshotItem
	scanned  map[string]bool
}

func NewScanClassifier(snapshot map[string]*SnapshotItem, scanned map[string]bool) *ScanClassifier {
	if snapshot == nil {
		snapshot = map[string]*SnapshotItem{}
	}
	if scanned == nil {
		scanned = map[string]bool{}
	}
	return &ScanClassifier{snapshot: snapshot, scanned: scanned}
}

func (c *ScanClassifier) Classify(raw string) Classification {
	imei, err := NormalizeIdentifier(raw)
	if err != nil {
		return Classification{IMEI: imei, Outcome: OutcomeInvalid}
	}
	if c.scanned[imei] {
		return Classification{IMEI: imei, Outcome: OutcomeDuplicate}
	}
	c.scanned[imei] = true
	if item, ok := c.snapshot[imei]; ok {
		return Classification{IMEI: imei, Outcome: OutcomeMatch, Item: item}
	}
	return Classification{IMEI: imei, Outcome: OutcomeUnregistered}
}

// ScanLine is a non-blank input line with its 1-based position in the input.
type ScanLine struct {
	Number int
	Raw    string
}

// SplitLines turns pasted scanner text into lines.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// NumberLines drops blank lines and keeps the original numbering of the rest.
func NumberLines(lines []string) []ScanLine {
	out := make([]ScanLine, 0, len(lines))
	for i, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		out = append(out, ScanLine{Number: i + 1, Raw: raw})
	}
	return out
}

// CandidateIdentifiers returns the distinct well-formed identifiers among
// lines, for loading only the rows a batch can touch.
func CandidateIdentifiers(lines []ScanLine) []string {
	seen := make(map[string]bool, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		id, err := NormalizeIdentifier(l.Raw)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
