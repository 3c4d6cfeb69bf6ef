// ABOUTME: Google People API client for contacts sync
// ABOUTME: Wraps the People service behind a paging interface the adapter can fake
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

const personFields = "names,nicknames,emailAddresses,phoneNumbers,organizations,biographies,addresses,metadata"

// ConnectionsPage is one page of the user's connections.
type ConnectionsPage struct {
	People        []*people.Person
	NextPageToken string
	// NextSyncToken is only set on the last page.
	NextSyncToken string
}

// PeopleSource lists connections. An empty syncToken requests a full listing.
type PeopleSource interface {
	ListConnections(ctx context.Context, pageToken, syncToken string) (*ConnectionsPage, error)
}

// ErrSyncTokenExpired is returned when the server no longer accepts a sync token.
var ErrSyncTokenExpired = errors.New("sync token expired")

type peopleService struct {
	svc *people.Service
}

// NewPeopleClient creates a People API source authenticated with token.
func NewPeopleClient(ctx context.Context, token *oauth2.Token) (PeopleSource, error) {
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}

	client := NewOAuthConfig().Client(ctx, token)
	service, err := people.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create People service: %w", err)
	}
	return &peopleService{svc: service}, nil
}

func (s *peopleService) ListConnections(ctx context.Context, pageToken, syncToken string) (*ConnectionsPage, error) {
	call := s.svc.People.Connections.List("people/me").
		PageSize(1000).
		PersonFields(personFields).
		RequestSyncToken(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	if syncToken != "" {
		call = call.SyncToken(syncToken)
	}

	resp, err := call.Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusGone {
			return nil, ErrSyncTokenExpired
		}
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}
	return &ConnectionsPage{
		People:        resp.Connections,
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}, nil
}
