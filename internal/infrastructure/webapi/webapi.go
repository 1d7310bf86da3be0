// Package webapi implements [domain.ProcessService] and
// [domain.IdentityResolver] over the Dataverse Web API. The pac CLI covers
// the solution lifecycle but has no verbs for process state or ownership,
// so those go through the OData endpoint directly.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

const apiPath = "/api/data/v9.2"

// TokenSource supplies a bearer token for the environment. Tokens are
// fetched per request so long runs survive expiry.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource for a fixed token, typically read from
// the settings layer during short pipeline runs.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client talks to one environment's Web API.
type Client struct {
	// BaseURL is the environment URL without the /api/data suffix.
	BaseURL string
	Token   TokenSource

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+apiPath+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-Version", "4.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	return data, nil
}

type valueResponse[T any] struct {
	Value []T `json:"value"`
}

func query[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp valueResponse[T]
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Value, nil
}

type userRow struct {
	ID  string `json:"systemuserid"`
	UPN string `json:"domainname"`
}

func (c *Client) ResolveUser(ctx context.Context, upn string) (domain.UserRef, error) {
	path := "/systemusers?$select=systemuserid,domainname&$filter=" +
		url.QueryEscape(fmt.Sprintf("domainname eq '%s'", upn))
	users, err := query[userRow](ctx, c, path)
	if err != nil {
		return domain.UserRef{}, fmt.Errorf("resolve %q: %w", upn, err)
	}
	if len(users) != 1 {
		return domain.UserRef{}, fmt.Errorf("%w: %q matched %d users", domain.ErrIdentityUnresolved, upn, len(users))
	}
	return domain.UserRef{ID: users[0].ID, UPN: users[0].UPN}, nil
}

type solutionRow struct {
	ID string `json:"solutionid"`
}

type workflowRow struct {
	ID        string `json:"workflowid"`
	Name      string `json:"name"`
	OwnerID   string `json:"_ownerid_value"`
	StateCode int    `json:"statecode"`
}

func (c *Client) ListProcesses(ctx context.Context, solution string) ([]domain.Process, error) {
	path := "/solutions?$select=solutionid&$filter=" +
		url.QueryEscape(fmt.Sprintf("uniquename eq '%s'", solution))
	solutions, err := query[solutionRow](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("look up solution %q: %w", solution, err)
	}
	if len(solutions) == 0 {
		return nil, fmt.Errorf("solution %q: %w", solution, domain.ErrNotFound)
	}

	path = "/workflows?$select=workflowid,name,_ownerid_value,statecode&$filter=" +
		url.QueryEscape(fmt.Sprintf("solutionid eq %s and type eq 1", solutions[0].ID))
	rows, err := query[workflowRow](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("list processes of %q: %w", solution, err)
	}

	processes := make([]domain.Process, 0, len(rows))
	for _, row := range rows {
		processes = append(processes, domain.Process{
			ID:      row.ID,
			Name:    row.Name,
			OwnerID: row.OwnerID,
			Active:  row.StateCode == 1,
		})
	}
	return processes, nil
}

func (c *Client) ActivateProcess(ctx context.Context, id string) error {
	body := map[string]int{"statecode": 1, "statuscode": 2}
	if _, err := c.do(ctx, http.MethodPatch, "/workflows("+id+")", body); err != nil {
		return fmt.Errorf("activate process %s: %w", id, err)
	}
	return nil
}

func (c *Client) AssignProcessOwner(ctx context.Context, id, ownerID string) error {
	body := map[string]string{"ownerid@odata.bind": "/systemusers(" + ownerID + ")"}
	if _, err := c.do(ctx, http.MethodPatch, "/workflows("+id+")", body); err != nil {
		return fmt.Errorf("assign process %s to %s: %w", id, ownerID, err)
	}
	return nil
}
