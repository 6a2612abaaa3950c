package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		DatabaseID: "db1",
	})
}

func TestListDocumentsFromDatabase(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/db1/query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Notion-Version"); got != notionVersion {
			t.Errorf("Notion-Version = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"id":               "p1",
					"last_edited_time": "2024-01-02T00:00:00Z",
					"properties": map[string]any{
						"Name": map[string]any{
							"type":  "title",
							"title": []map[string]any{{"plain_text": "Offerings"}},
						},
					},
				},
				{
					"id":               "p2",
					"last_edited_time": "2024-01-03T00:00:00Z",
					"properties":       map[string]any{},
				},
			},
			"has_more": false,
		})
	})

	docs, err := client.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID != "p1" || docs[0].Title != "Offerings" || docs[0].Marker != "2024-01-02T00:00:00Z" {
		t.Errorf("doc[0] = %+v", docs[0])
	}
	if docs[0].Content != "" {
		t.Error("list must not carry content")
	}
}

func TestFetchDocumentExtractsBlocks(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pages/p1":
			json.NewEncoder(w).Encode(map[string]any{
				"id":               "p1",
				"last_edited_time": "2024-01-02T00:00:00Z",
				"properties": map[string]any{
					"title": map[string]any{
						"type":  "title",
						"title": []map[string]any{{"plain_text": "Services"}},
					},
				},
			})
		case strings.HasPrefix(r.URL.Path, "/blocks/p1/"):
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"id": "b1", "type": "heading_2",
						"heading_2": map[string]any{"rich_text": []map[string]any{{"plain_text": "Consulting"}}},
					},
					{
						"id": "b2", "type": "paragraph",
						"paragraph": map[string]any{"rich_text": []map[string]any{{"plain_text": "We build things."}}},
					},
					{
						"id": "b3", "type": "bulleted_list_item", "has_children": true,
						"bulleted_list_item": map[string]any{"rich_text": []map[string]any{{"plain_text": "Go daemons"}}},
					},
					{
						"id": "b4", "type": "divider",
					},
				},
				"has_more": false,
			})
		case strings.HasPrefix(r.URL.Path, "/blocks/b3/"):
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"id": "b5", "type": "paragraph",
						"paragraph": map[string]any{"rich_text": []map[string]any{{"plain_text": "Polling loops"}}},
					},
				},
				"has_more": false,
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	doc, err := client.FetchDocument(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FetchDocument failed: %v", err)
	}
	want := "# Services\n\n## Consulting\n\nWe build things.\n\n- Go daemons\n\nPolling loops"
	if doc.Content != want {
		t.Errorf("content = %q, want %q", doc.Content, want)
	}
	if doc.Marker != "2024-01-02T00:00:00Z" {
		t.Errorf("marker = %q", doc.Marker)
	}
}

func TestListDocumentsAPIError(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	})

	if _, err := client.ListDocuments(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
