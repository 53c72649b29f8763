package marketo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"activity-export/internal/common/errors"
	commonhttp "activity-export/internal/common/http"
	"activity-export/internal/common/logger"
	"activity-export/internal/common/validation"
)

const (
	pagingTokenPath   = "/rest/v1/activities/pagingtoken.json"
	activitiesPath    = "/rest/v1/activities.json"
	activityTypesPath = "/rest/v1/activities/types.json"
)

// Client is a typed client for the lead activity REST endpoints.
// Responses are schema-checked before they are decoded.
type Client struct {
	baseURL    string
	httpClient *commonhttp.Client
	tokens     TokenProvider
	logger     logger.Logger
}

func NewClient(instanceURL string, httpClient *commonhttp.Client, tokens TokenProvider, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(instanceURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		logger:     log,
	}
}

// GetPagingToken asks for the continuation token positioned at sinceDate (YYYY-MM-DD).
func (c *Client) GetPagingToken(ctx context.Context, sinceDate string) (*PagingTokenResponse, error) {
	params := url.Values{}
	params.Set("sinceDatetime", sinceDate)

	body, err := c.get(ctx, "get paging token", pagingTokenPath, params)
	if err != nil {
		return nil, err
	}

	if err := checkSchema("paging token", body, validation.ValidatePagingToken); err != nil {
		return nil, err
	}

	var resp PagingTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewTransportError("get paging token", fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return &resp, nil
}

// GetActivities fetches one page of activities for the comma-joined activity type ids.
func (c *Client) GetActivities(ctx context.Context, nextPageToken, activityTypeIDs string) (*ActivityPage, error) {
	params := url.Values{}
	params.Set("nextPageToken", nextPageToken)
	params.Set("activityTypeIds", activityTypeIDs)

	body, err := c.get(ctx, "get activities", activitiesPath, params)
	if err != nil {
		return nil, err
	}

	if err := checkSchema("activities page", body, validation.ValidateActivitiesPage); err != nil {
		return nil, err
	}

	var page ActivityPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, errors.NewTransportError("get activities", fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return &page, nil
}

// GetActivityTypes lists the activity types defined on the instance.
func (c *Client) GetActivityTypes(ctx context.Context) (*ActivityTypesResponse, error) {
	body, err := c.get(ctx, "get activity types", activityTypesPath, nil)
	if err != nil {
		return nil, err
	}

	if err := checkSchema("activity types", body, validation.ValidateActivityTypes); err != nil {
		return nil, err
	}

	var resp ActivityTypesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewTransportError("get activity types", fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return &resp, nil
}

// RefreshCredentials replaces the bearer token after the API reported it expired.
func (c *Client) RefreshCredentials(ctx context.Context) error {
	if _, err := c.tokens.Refresh(ctx); err != nil {
		return errors.NewAuthFailedError(err)
	}
	c.logger.Info("Access token refreshed", nil)
	return nil
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, errors.NewAuthFailedError(err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewTransportError(operation, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewTransportError(operation, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError(operation, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTransportError(operation, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 512)))
	}

	return body, nil
}

func checkSchema(what string, body []byte, validate func([]byte) (*validation.ValidationResult, error)) error {
	result, err := validate(body)
	if err != nil {
		return errors.NewTransportError("decode "+what, err)
	}
	if !result.Valid {
		return errors.NewMalformedPageError(fmt.Sprintf("%s failed schema validation: %v", what, result.GetErrorMessages()))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
