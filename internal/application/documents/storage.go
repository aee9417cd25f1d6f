package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Storage issues signed upload URLs for the private documents bucket.
type Storage interface {
	CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error)
}

// SupabaseStorage is a Storage backed by the Supabase storage HTTP API.
type SupabaseStorage struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client
}

type signedUploadResponse struct {
	SignedURL      string `json:"signedUrl"`
	SignedURLSnake string `json:"signed_url"`
	URL            string `json:"url"`
}

func (s *SupabaseStorage) CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error) {
	if s.BaseURL == "" || s.SecretKey == "" {
		return "", fmt.Errorf("supabase: SUPABASE_URL and SUPABASE_SECRET_KEY must be set")
	}
	if s.Client == nil {
		s.Client = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(s.BaseURL, "/")
	body, _ := json.Marshal(map[string]interface{}{"expiresIn": 900, "upsert": false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/storage/v1/object/upload/sign/%s/%s", base, bucket, path), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	// Storage wants the service_role key in both headers.
	req.Header.Set("apikey", s.SecretKey)
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("supabase error: status %d body: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out signedUploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("supabase response decode: %w", err)
	}
	switch {
	case out.SignedURL != "":
		return out.SignedURL, nil
	case out.SignedURLSnake != "":
		return out.SignedURLSnake, nil
	case out.URL != "":
		u := out.URL
		if !strings.HasPrefix(u, "/") {
			u = "/" + u
		}
		// Relative paths are served under the storage API root.
		if !strings.HasPrefix(u, "/storage/v1") {
			u = "/storage/v1" + u
		}
		return base + u, nil
	}
	return "", fmt.Errorf("supabase returned no signed URL")
}
