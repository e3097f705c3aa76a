package model

import (
	"strconv"
	"strings"
)

// Listing status values reported by the marketplace.
const (
	ListingStatusPending  = "Pending"
	ListingStatusApproved = "Approved"
	ListingStatusRejected = "Rejected"
	ListingStatusSold     = "Sold"
)

// Resource is a single user-owned listing as observed by a poll.
type Resource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Make   string `json:"make,omitempty"`
	Model  string `json:"model,omitempty"`
	Year   int    `json:"year,omitempty"`

	// Title is the listing headline, if the seller set one.
	Title string `json:"title,omitempty"`
}

// DisplayName returns a human-readable name for the listing, preferring
// the explicit title and falling back to "year make model".
func (r Resource) DisplayName() string {
	if strings.TrimSpace(r.Title) != "" {
		return r.Title
	}

	var parts []string
	if r.Year > 0 {
		parts = append(parts, strconv.Itoa(r.Year))
	}
	if r.Make != "" {
		parts = append(parts, r.Make)
	}
	if r.Model != "" {
		parts = append(parts, r.Model)
	}
	if len(parts) == 0 {
		return "Listing " + r.ID
	}
	return strings.Join(parts, " ")
}

// Snapshot maps resource id to its state at one poll cycle.
type Snapshot map[string]Resource

// NewSnapshot indexes resources by id. Resources without an id are skipped.
func NewSnapshot(resources []Resource) Snapshot {
	s := make(Snapshot, len(resources))
	for _, r := range resources {
		if r.ID == "" {
			continue
		}
		s[r.ID] = r
	}
	return s
}
