package deploy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hpungsan/sitesmith/internal/errors"
)

func TestSiteName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	if got := SiteName("01HZX3ABCDEFG", at); got != "ai-website-01hzx3ab-1700000000123" {
		t.Errorf("SiteName() = %q", got)
	}
	if got := SiteName("abc", at); got != "ai-website-abc-1700000000123" {
		t.Errorf("SiteName(short) = %q", got)
	}
}

func TestClient_Deploy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v13/deployments", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var raw map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "ai-website-projectx-1000", raw["name"])
		settings, _ := raw["projectSettings"].(map[string]any)
		v, present := settings["framework"]
		assert.True(t, present)
		assert.Nil(t, v)

		files, _ := raw["files"].([]any)
		if assert.Len(t, files, 1) {
			f := files[0].(map[string]any)
			assert.Equal(t, "index.html", f["file"])
			data, _ := f["data"].(string)
			assert.True(t, strings.HasPrefix(data, "<!DOCTYPE html>"))
			assert.Contains(t, data, "<h1>Hi</h1>")
			assert.Contains(t, data, "cdn.tailwindcss.com")
		}

		_, _ = w.Write([]byte(`{"id":"dpl_1","url":"ai-website-projectx.vercel.app","readyState":"QUEUED"}`))
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL)
	c.now = func() time.Time { return time.UnixMilli(1000) }

	res, err := c.Deploy(context.Background(), Request{ProjectID: "projectxyz", Markup: "<h1>Hi</h1>"})
	require.NoError(t, err)
	require.Equal(t, "https://ai-website-projectx.vercel.app", res.URL)
	require.Equal(t, "dpl_1", res.DeploymentID)
	require.Equal(t, "QUEUED", res.Status)
	_, err = uuid.Parse(res.SiteID)
	require.NoError(t, err)
}

func TestClient_DeployFullDocumentUnchanged(t *testing.T) {
	doc := "<!doctype html><html><body><p>x</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p deployPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if assert.Len(t, p.Files, 1) {
			assert.Equal(t, doc, p.Files[0].Data)
		}
		_, _ = w.Write([]byte(`{"id":"d","url":"u.vercel.app"}`))
	}))
	defer srv.Close()

	res, err := NewClient("tok", srv.URL).Deploy(context.Background(), Request{ProjectID: "p", Markup: doc})
	require.NoError(t, err)
	require.Equal(t, "BUILDING", res.Status)
}

func TestClient_DeployErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nested", `{"error":{"code":"forbidden","message":"Not authorized"}}`, "vercel: deployment failed: Not authorized"},
		{"flat", `{"message":"Bad name"}`, "vercel: deployment failed: Bad name"},
		{"raw", `gateway exploded`, "vercel: deployment failed: gateway exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("tok", srv.URL).Deploy(context.Background(), Request{ProjectID: "p", Markup: "<p>x</p>"})
			require.True(t, apperrors.Is(err, apperrors.ErrUpstream))
			require.Equal(t, tt.want, apperrors.UserMessage(err))
		})
	}
}

func TestClient_DeployValidation(t *testing.T) {
	_, err := NewClient("", "").Deploy(context.Background(), Request{ProjectID: "p", Markup: "x"})
	require.True(t, apperrors.Is(err, apperrors.ErrNotConfigured))

	_, err = NewClient("tok", "").Deploy(context.Background(), Request{ProjectID: "p", Markup: "  "})
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}
