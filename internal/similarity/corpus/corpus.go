// Package corpus builds the corpus-global statistics the vectorizer needs:
// the normalized document set, each document's term stream, and the
// document-frequency table. An Index is a snapshot; callers rebuild it
// explicitly whenever their document set changes.
package corpus

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/tokenizer"
)

// Document is a single unit of text to compare. Text is the combined
// title and body of a note.
type Document struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Index is an immutable corpus snapshot.
type Index struct {
	Documents []Document
	Terms     [][]string
	DocFreq   map[string]int
	TotalDocs int
}

// Normalize removes duplicate IDs. The later document's text wins and keeps
// the position of the first occurrence.
func Normalize(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	seen := make(map[string]int, len(docs))
	for _, doc := range docs {
		if idx, ok := seen[doc.ID]; ok {
			out[idx] = doc
			continue
		}
		seen[doc.ID] = len(out)
		out = append(out, doc)
	}
	return out
}

// BuildDocumentFrequency counts, for every term, how many documents contain
// it at least once.
func BuildDocumentFrequency(docs []Document) map[string]int {
	df := make(map[string]int)
	for _, doc := range Normalize(docs) {
		addDocumentTerms(df, tokenizer.Tokenize(doc.Text))
	}
	return df
}

// Build tokenizes every document once and computes document frequencies.
func Build(docs []Document) *Index {
	normalized := Normalize(docs)
	idx := &Index{
		Documents: normalized,
		Terms:     make([][]string, len(normalized)),
		DocFreq:   make(map[string]int),
		TotalDocs: len(normalized),
	}
	for i, doc := range normalized {
		terms := tokenizer.Tokenize(doc.Text)
		idx.Terms[i] = terms
		addDocumentTerms(idx.DocFreq, terms)
	}
	return idx
}

// IDs returns document IDs in corpus order.
func (idx *Index) IDs() []string {
	ids := make([]string, len(idx.Documents))
	for i, doc := range idx.Documents {
		ids[i] = doc.ID
	}
	return ids
}

// Vocabulary returns the number of distinct terms in the corpus.
func (idx *Index) Vocabulary() int {
	return len(idx.DocFreq)
}

// Fingerprint identifies a corpus version. Input order does not matter and
// duplicates resolve the same way Normalize does.
func Fingerprint(docs []Document) string {
	normalized := Normalize(docs)
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].ID < normalized[j].ID
	})
	h := xxhash.New()
	for _, doc := range normalized {
		// Length prefixes keep ("ab","c") and ("a","bc") distinct.
		_, _ = h.WriteString(strconv.Itoa(len(doc.ID)))
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(doc.ID)
		_, _ = h.WriteString(strconv.Itoa(len(doc.Text)))
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(doc.Text)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func addDocumentTerms(df map[string]int, terms []string) {
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		df[term]++
	}
}
