// Package search implements semantic retrieval over the document index: the
// query is embedded and matched against chunk vectors in Postgres/pgvector.
package search

// Snippet is one retrieved fragment of source document text with its
// provenance metadata.
type Snippet struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Source     string   `json:"source"`
	SourceFile string   `json:"sourceFile"`
	Score      float64  `json:"score"`
	Captions   []string `json:"captions,omitempty"`
}

// Results carries the ranked snippets for one query plus the total number of
// chunks held by the index.
type Results struct {
	Count   int64     `json:"count"`
	Results []Snippet `json:"results"`
}
