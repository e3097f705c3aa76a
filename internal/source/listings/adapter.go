package listings

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/carfeed/internal/apiclient"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/source"
)

// Adapter implements source.SnapshotSource over the marketplace listings
// endpoint.
type Adapter struct {
	client *apiclient.Client
}

// NewAdapter creates a listings adapter using client.
func NewAdapter(client *apiclient.Client) *Adapter {
	return &Adapter{client: client}
}

var _ source.SnapshotSource = (*Adapter)(nil)

// FetchSnapshot calls GET /users/{id}/listings and indexes the result.
func (a *Adapter) FetchSnapshot(
	ctx context.Context,
	userID string,
) (model.Snapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("fetching listings: empty user id")
	}

	var resp ListingsResponse
	path := "/users/" + url.PathEscape(userID) + "/listings"
	if err := a.client.Get(ctx, path, &resp); err != nil {
		if apiclient.IsAuthError(err) {
			return nil, &source.AuthError{UserID: userID, Message: "listings credential rejected"}
		}
		return nil, fmt.Errorf("fetching listings for %s: %w", userID, err)
	}

	resources := make([]model.Resource, 0, len(resp.Listings))
	for _, l := range resp.Listings {
		resources = append(resources, listingToResource(l))
	}
	return model.NewSnapshot(resources), nil
}

// listingToResource converts an API listing to the domain resource.
func listingToResource(l Listing) model.Resource {
	return model.Resource{
		ID:     l.ID,
		Status: l.Status,
		Make:   l.Make,
		Model:  l.Model,
		Year:   l.Year,
		Title:  l.Title,
	}
}
