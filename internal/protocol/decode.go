package protocol

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Profile is the record extracted from a kind-0 (metadata) event's content.
// Fields absent from or mistyped in the source JSON are left empty.
type Profile struct {
	PubKey      string
	Name        string
	DisplayName string
	About       string
	Picture     string
	Banner      string
	Website     string
	Lud16       string
	Nip05       string
	CreatedAt   int64
	SearchTerms []string
}

// DecodeProfile parses a kind-0 event's content as a JSON object and builds
// a Profile. The caller is expected to have already validated the event and
// to have checked e.Kind == KindProfile.
func DecodeProfile(e *Event) (*Profile, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(e.Content), &raw); err != nil {
		return nil, invalid("profile content is not a JSON object: %v", err)
	}

	p := &Profile{
		PubKey:      e.PubKey,
		Name:        stringField(raw, "name"),
		DisplayName: stringField(raw, "display_name"),
		About:       stringField(raw, "about"),
		Picture:     stringField(raw, "picture"),
		Banner:      stringField(raw, "banner"),
		Website:     stringField(raw, "website"),
		Lud16:       stringField(raw, "lud16"),
		Nip05:       stringField(raw, "nip05"),
		CreatedAt:   e.CreatedAt,
	}
	p.SearchTerms = searchTerms(p)
	return p, nil
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// minTokenLen is the shortest token kept in the inverted search index; this
// filters noise like "a", "of", "is" without a stopword list.
const minTokenLen = 3

func searchTerms(p *Profile) []string {
	set := make(map[string]struct{})
	for _, field := range []string{p.Name, p.DisplayName, p.About} {
		for _, tok := range tokenize(field) {
			set[tok] = struct{}{}
		}
	}
	if p.Nip05 != "" {
		set[strings.ToLower(p.Nip05)] = struct{}{}
	}

	terms := make([]string, 0, len(set))
	for tok := range set {
		terms = append(terms, tok)
	}
	sort.Strings(terms)
	return terms
}

// tokenize lowercases a field, splits it on whitespace, trims leading and
// trailing non-alphanumeric runes from each word, and drops anything
// shorter than minTokenLen. It is also used by Store.Search to tokenize the
// incoming query so both sides of the lookup agree on token shape.
func tokenize(field string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(field)) {
		word = strings.TrimFunc(word, isNotAlphanumeric)
		if len(word) >= minTokenLen {
			out = append(out, word)
		}
	}
	return out
}

func isNotAlphanumeric(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return false
	case r >= '0' && r <= '9':
		return false
	default:
		return true
	}
}

// Tokenize exposes the indexer's tokenization rule for callers outside this
// package, namely the search query path, which must tokenize identically.
func Tokenize(field string) []string {
	return tokenize(field)
}

// ContactEdge is one outbound relationship extracted from a kind-3 event.
type ContactEdge struct {
	Follower  string
	Followee  string
	Relay     string
	Petname   string
	CreatedAt int64
}

// DecodeContacts scans e.Tags for "p" tags and returns one ContactEdge per
// well-formed tag. Malformed tags (missing followee, invalid hex) are
// skipped rather than failing the whole event, since a single bad tag in
// an otherwise valid contact list should not discard the rest.
func DecodeContacts(e *Event) []ContactEdge {
	var edges []ContactEdge
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		followee := strings.ToLower(tag[1])
		if !isHex32(followee) {
			continue
		}

		edge := ContactEdge{
			Follower:  e.PubKey,
			Followee:  followee,
			CreatedAt: e.CreatedAt,
		}
		if len(tag) > 2 {
			edge.Relay = tag[2]
		}
		if len(tag) > 3 {
			edge.Petname = tag[3]
		}
		edges = append(edges, edge)
	}
	return edges
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
