package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	AuthorName string `json:"authorName"`
	Apartment  string `json:"apartmentNumber"`
	Upvotes    int    `json:"upvotes"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over the board.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ConcernRecord is the data we index for a concern. Soft-deleted concerns
// are removed from the index rather than flagged, so search never surfaces
// them.
type ConcernRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AuthorName  string `json:"authorName"`
	Apartment   string `json:"apartmentNumber"`
	Upvotes     int    `json:"upvotes"`
}
