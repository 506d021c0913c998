package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reviewloop/reviewloop/internal/model"
	"github.com/reviewloop/reviewloop/internal/provider"
)

func TestGitLabClient_GetMergeRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.EscapedPath(), "/merge_requests/42"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":               999,
				"iid":              42,
				"title":            "Test MR",
				"description":      "Description",
				"state":            "opened",
				"source_branch":    "feature",
				"target_branch":    "main",
				"author":           map[string]string{"username": "author"},
				"labels":           []string{"bug"},
				"user_notes_count": 4,
			})
		case strings.HasSuffix(r.URL.EscapedPath(), "/merge_requests/42/changes"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"iid": 42,
				"changes": []map[string]interface{}{
					{"new_path": "main.go", "old_path": "main.go", "diff": "@@ -1 +1 @@\n-old\n+new"},
					{"new_path": "new.go", "old_path": "new.go", "new_file": true, "diff": "@@ -0,0 +1 @@\n+x"},
					{"new_path": "gone.go", "old_path": "gone.go", "deleted_file": true, "diff": "@@ -1 +0,0 @@\n-x"},
				},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	mr, err := c.GetMergeRequest(context.Background(), "owner", "repo", "42")
	if err != nil {
		t.Fatalf("GetMergeRequest() error = %v", err)
	}

	if mr.Title != "Test MR" {
		t.Errorf("Title = %q, want %q", mr.Title, "Test MR")
	}
	if mr.State != model.StateOpen {
		t.Errorf("State = %q, want %q", mr.State, model.StateOpen)
	}
	if mr.Author != "author" {
		t.Errorf("Author = %q, want %q", mr.Author, "author")
	}
	if len(mr.FileDiffs) != 3 {
		t.Fatalf("got %d file diffs, want 3", len(mr.FileDiffs))
	}
	if mr.FileDiffs[1].ChangeType != model.ChangeAdd {
		t.Errorf("FileDiffs[1].ChangeType = %q, want %q", mr.FileDiffs[1].ChangeType, model.ChangeAdd)
	}
	if mr.FileDiffs[1].OldPath != "" {
		t.Errorf("FileDiffs[1].OldPath = %q, want empty", mr.FileDiffs[1].OldPath)
	}
	if mr.FileDiffs[2].ChangeType != model.ChangeDelete {
		t.Errorf("FileDiffs[2].ChangeType = %q, want %q", mr.FileDiffs[2].ChangeType, model.ChangeDelete)
	}
}

func TestGitLabClient_GetMergeRequest_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "404 Not found"})
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	_, err := c.GetMergeRequest(context.Background(), "owner", "repo", "42")
	if !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func discussionsPayload() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id": "d1",
			"notes": []map[string]interface{}{
				{"id": 1, "body": "file comment", "author": map[string]string{"username": "alice"},
					"position": map[string]interface{}{"new_path": "main.go", "new_line": 10}},
				{"id": 2, "body": "a reply", "author": map[string]string{"username": "bob"}},
			},
		},
		{
			"id": "d2",
			"notes": []map[string]interface{}{
				{"id": 3, "body": "general comment", "author": map[string]string{"username": "carol"}},
				{"id": 4, "body": "merge status changed", "system": true,
					"author": map[string]string{"username": "gitlab"}},
			},
		},
	}
}

func TestGitLabClient_ListComments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.EscapedPath(), "/merge_requests/42/discussions") {
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
		json.NewEncoder(w).Encode(discussionsPayload())
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	comments, err := c.ListComments(context.Background(), "owner", "repo", "42")
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}

	// System note is dropped.
	if len(comments) != 3 {
		t.Fatalf("got %d comments, want 3", len(comments))
	}
	if comments[0].Type != model.CommentFile {
		t.Errorf("comments[0].Type = %q, want %q", comments[0].Type, model.CommentFile)
	}
	if comments[0].Position == nil || comments[0].Position.NewLine != 10 {
		t.Errorf("comments[0].Position = %+v", comments[0].Position)
	}
	if comments[1].Type != model.CommentReply || comments[1].ReplyTo != "1" {
		t.Errorf("comments[1] = %+v, want reply to 1", comments[1])
	}
	if comments[2].Type != model.CommentGeneral {
		t.Errorf("comments[2].Type = %q, want %q", comments[2].Type, model.CommentGeneral)
	}
}

func TestGitLabClient_CreateComment_General(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.EscapedPath(), "/merge_requests/42/notes") {
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["body"] != "hello" {
			t.Errorf("body = %v, want hello", body["body"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 77, "body": "hello", "author": map[string]string{"username": "bot"},
		})
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	cm, err := c.CreateComment(context.Background(), "owner", "repo", "42", provider.CommentDraft{Content: "hello"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if cm.ID != "77" {
		t.Errorf("ID = %q, want %q", cm.ID, "77")
	}
}

func TestGitLabClient_CreateComment_Reply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		switch {
		case strings.HasSuffix(path, "/merge_requests/42/discussions") && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(discussionsPayload())
		case strings.HasSuffix(path, "/discussions/d1/notes") && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": 88, "body": "replying", "author": map[string]string{"username": "bot"},
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, path)
		}
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	cm, err := c.CreateComment(context.Background(), "owner", "repo", "42", provider.CommentDraft{
		Content: "replying",
		ReplyTo: "2",
	})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if cm.Type != model.CommentReply || cm.ReplyTo != "2" {
		t.Errorf("comment = %+v, want reply to 2", cm)
	}
}

func TestGitLabClient_CreateComment_Positioned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		switch {
		case strings.HasSuffix(path, "/merge_requests/42/versions"):
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 2, "base_commit_sha": "base", "head_commit_sha": "head", "start_commit_sha": "start"},
				{"id": 1, "base_commit_sha": "old-base", "head_commit_sha": "old-head", "start_commit_sha": "old-start"},
			})
		case strings.HasSuffix(path, "/merge_requests/42/discussions") && r.Method == http.MethodPost:
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			pos, ok := body["position"].(map[string]interface{})
			if !ok {
				t.Fatalf("position missing: %v", body)
			}
			if pos["head_sha"] != "head" {
				t.Errorf("head_sha = %v, want head", pos["head_sha"])
			}
			if pos["new_path"] != "main.go" {
				t.Errorf("new_path = %v, want main.go", pos["new_path"])
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": "d9",
				"notes": []map[string]interface{}{
					{"id": 99, "body": "check this", "author": map[string]string{"username": "bot"},
						"position": map[string]interface{}{"new_path": "main.go", "new_line": 10}},
				},
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, path)
		}
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	cm, err := c.CreateComment(context.Background(), "owner", "repo", "42", provider.CommentDraft{
		Content:  "check this",
		Position: &model.CommentPosition{NewPath: "main.go", NewLine: 10},
	})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if cm.Type != model.CommentFile {
		t.Errorf("Type = %q, want %q", cm.Type, model.CommentFile)
	}
}

func TestGitLabClient_ResolveThread(t *testing.T) {
	resolved := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		switch {
		case strings.HasSuffix(path, "/merge_requests/42/discussions") && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(discussionsPayload())
		case strings.HasSuffix(path, "/discussions/d1") && r.Method == http.MethodPut:
			resolved = true
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "d1"})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, path)
		}
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	if err := c.ResolveThread(context.Background(), "owner", "repo", "42", "1"); err != nil {
		t.Fatalf("ResolveThread() error = %v", err)
	}
	if !resolved {
		t.Error("resolve request was not sent")
	}
}

func TestGitLabClient_ResolveThread_UnknownNote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]interface{}{})
	}))
	defer server.Close()

	c := New("test-token", WithBaseURL(server.URL))
	err := c.ResolveThread(context.Background(), "owner", "repo", "42", "1")
	if !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGitLabClient_Name(t *testing.T) {
	c := New("test-token")
	if c.Name() != "gitlab" {
		t.Errorf("Name() = %q, want %q", c.Name(), "gitlab")
	}
}
