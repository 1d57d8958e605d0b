package ledger

import (
	"github.com/regledger/regledger/pkg/document"
)

// Result is the fully materialized output of a statement. It is read with a
// cursor:
//
//	for res.Next() {
//		doc := res.Document()
//	}
type Result struct {
	docs []document.Document
	pos  int
}

func newResult(docs []document.Document) *Result {
	return &Result{docs: docs, pos: -1}
}

// Next advances the cursor and reports whether a document is available.
func (r *Result) Next() bool {
	if r.pos+1 >= len(r.docs) {
		r.pos = len(r.docs)
		return false
	}
	r.pos++
	return true
}

// Document returns the document under the cursor, or nil before the first
// call to Next and after the last.
func (r *Result) Document() document.Document {
	if r.pos < 0 || r.pos >= len(r.docs) {
		return nil
	}
	return r.docs[r.pos]
}

// Decode decodes the document under the cursor into out.
func (r *Result) Decode(out any) error {
	doc := r.Document()
	if doc == nil {
		return NewStatementError("no current document", nil)
	}
	return document.Unmarshal(map[string]any(doc), out)
}

// Documents returns every document regardless of cursor position.
func (r *Result) Documents() []document.Document {
	return r.docs
}

// Len returns the number of documents.
func (r *Result) Len() int {
	return len(r.docs)
}

// IsEmpty reports whether the statement produced no documents.
func (r *Result) IsEmpty() bool {
	return len(r.docs) == 0
}

// First returns the first document, if any.
func (r *Result) First() (document.Document, bool) {
	if len(r.docs) == 0 {
		return nil, false
	}
	return r.docs[0], true
}
