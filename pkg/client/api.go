// Package client implements the boardcast client: the HTTP API surface for
// accounts and board pages, and the realtime connection for live events.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boardcast/boardcast/pkg/protocol"
)

// ThreadPage is one page of the board as served by the read API.
type ThreadPage struct {
	Page       int                `json:"page"`
	TotalPages int                `json:"totalPages"`
	Messages   []protocol.Message `json:"messages"`
}

// User is a public user profile.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt"`
}

// API talks to the server's HTTP surface.
type API struct {
	baseURL string
	client  *http.Client
}

// NewAPI creates an API client for the given host:port.
func NewAPI(addr string, useTLS bool) *API {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	return &API{
		baseURL: fmt.Sprintf("%s://%s", scheme, addr),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	Error string `json:"error"`
}

// Register creates an account.
func (a *API) Register(username, password string) (*User, error) {
	var user User
	err := a.postJSON("/api/register", map[string]string{
		"username": username,
		"password": password,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and returns a connection token.
func (a *API) Login(username, password string) (string, error) {
	var body map[string]string
	err := a.postJSON("/api/login", map[string]string{
		"username": username,
		"password": password,
	}, &body)
	if err != nil {
		return "", err
	}
	return body["token"], nil
}

// ListPage fetches one page of the board.
func (a *API) ListPage(page int) (*ThreadPage, error) {
	var result ThreadPage
	if err := a.getJSON(fmt.Sprintf("/api/msgs?p=%d", page), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUser fetches a public profile.
func (a *API) GetUser(id int64) (*User, error) {
	var user User
	if err := a.getJSON(fmt.Sprintf("/api/users/%d", id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *API) postJSON(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := a.client.Post(a.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func (a *API) getJSON(path string, out interface{}) error {
	resp, err := a.client.Get(a.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
