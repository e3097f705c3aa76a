package listings

// ListingsResponse is the response from GET /users/{id}/listings.
type ListingsResponse struct {
	Listings []Listing `json:"listings"`
	Total    int       `json:"total"`
}

// Listing is a single car listing as returned by the marketplace API.
type Listing struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Make      string `json:"make"`
	Model     string `json:"model"`
	Year      int    `json:"year"`
	Title     string `json:"title,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
