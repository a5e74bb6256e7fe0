package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func apiServer(t *testing.T, handler http.HandlerFunc) *API {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAPI(strings.TrimPrefix(srv.URL, "http://"), false)
}

func TestAPIRegisterAndLogin(t *testing.T) {
	api := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/register":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":123456,"username":"alice","createdAt":1700000000000}`))
		case "/api/login":
			w.Write([]byte(`{"token":"sekrit"}`))
		default:
			http.NotFound(w, r)
		}
	})

	user, err := api.Register("alice", "hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID != 123456 || user.Username != "alice" {
		t.Errorf("Unexpected user %+v", user)
	}

	token, err := api.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "sekrit" {
		t.Errorf("Expected token sekrit, got %q", token)
	}
}

func TestAPISurfacesServerErrors(t *testing.T) {
	api := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"username taken"}`))
	})

	_, err := api.Register("alice", "hunter2")
	if err == nil {
		t.Fatal("Expected error from 409 response")
	}
	if !strings.Contains(err.Error(), "username taken") {
		t.Errorf("Error does not carry server detail: %v", err)
	}
}

func TestAPIListPage(t *testing.T) {
	api := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/msgs" || r.URL.Query().Get("p") != "2" {
			t.Errorf("Unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"page":2,"totalPages":3,"messages":[{"id":111111,"content":"hi","timestamp":1700000000000,"authorId":222222,"authorName":"bob","parentId":null}]}`))
	})

	page, err := api.ListPage(2)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if page.Page != 2 || page.TotalPages != 3 || len(page.Messages) != 1 {
		t.Errorf("Unexpected page %+v", page)
	}
	if page.Messages[0].AuthorName != "bob" || page.Messages[0].ParentID != nil {
		t.Errorf("Unexpected message %+v", page.Messages[0])
	}
}
