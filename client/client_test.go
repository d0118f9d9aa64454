package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err != ErrMissingBaseURL {
		t.Fatalf("empty base url err = %v", err)
	}
	if _, err := New(Options{BaseURL: "ftp://host"}); err == nil {
		t.Fatal("ftp scheme accepted")
	}
	c, err := New(Options{BaseURL: "http://127.0.0.1:5050/"})
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != "http://127.0.0.1:5050" {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
	if got := c.connectURL(); got != "ws://127.0.0.1:5050/connect" {
		t.Fatalf("connectURL = %q", got)
	}

	c, err = New(Options{BaseURL: "https://relay.example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.connectURL(); got != "wss://relay.example.com/connect" {
		t.Fatalf("connectURL = %q", got)
	}
}

func TestMintPair(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pair" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"pairId": "a1b2c3",
			"token":  "00112233445566778899aabbccddeeff",
		})
	}))
	defer ts.Close()

	c, err := New(Options{BaseURL: ts.URL})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	creds, err := c.MintPair(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if creds.PairID != "a1b2c3" || len(creds.Token) != 32 {
		t.Fatalf("creds = %+v", creds)
	}
}

func TestMintPairRejectsBadResponses(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"not json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("nope"))
		},
		"malformed pair id": func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"pairId": "zz", "token": "t"})
		},
	}
	for name, h := range cases {
		ts := httptest.NewServer(h)
		c, err := New(Options{BaseURL: ts.URL})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.MintPair(context.Background()); err == nil {
			t.Errorf("%s: MintPair succeeded", name)
		}
		ts.Close()
	}
}

func TestConnectValidatesCredentials(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:5050"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Connect(context.Background(), "", "tok", "pc"); err != ErrMissingPairID {
		t.Fatalf("missing pair id err = %v", err)
	}
	if _, err := c.Connect(context.Background(), "a1b2c3", "", "pc"); err != ErrMissingToken {
		t.Fatalf("missing token err = %v", err)
	}
}
