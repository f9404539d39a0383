package search

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"games-catalog-service/internal/config"
)

// ResolveAddress derives the backend base URL. An explicit URL wins; otherwise
// CloudID is decoded from the "name:base64(cluster$host$kibana)" form, and as a
// last resort CloudID itself is tried as a URL.
func ResolveAddress(cfg config.ElasticConfig) (string, error) {
	if u := strings.TrimSpace(cfg.URL); u != "" {
		if !isAbsoluteURL(u) {
			return "", fmt.Errorf("%w: ELASTIC_URL %q is not an absolute URL", ErrConfiguration, u)
		}
		return u, nil
	}

	cloudID := strings.TrimSpace(cfg.CloudID)
	if cloudID == "" {
		return "", fmt.Errorf("%w: ELASTIC_URL or ELASTIC_CLOUD_ID must be set", ErrConfiguration)
	}

	if _, payload, ok := strings.Cut(cloudID, ":"); ok {
		if host, ok := decodeCloudHost(payload); ok {
			return host, nil
		}
	}

	if isAbsoluteURL(cloudID) {
		return cloudID, nil
	}
	return "", fmt.Errorf("%w: unusable ELASTIC_CLOUD_ID", ErrConfiguration)
}

func decodeCloudHost(payload string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	segs := strings.Split(string(decoded), "$")
	if len(segs) < 2 || strings.TrimSpace(segs[1]) == "" {
		return "", false
	}
	host := segs[1]
	lower := strings.ToLower(host)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		host = "https://" + host
	}
	return host, true
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}

// NewClient builds an Elasticsearch client for the resolved address.
// transport may be nil.
func NewClient(cfg config.ElasticConfig, transport http.RoundTripper) (*elasticsearch.Client, error) {
	addr, err := ResolveAddress(cfg)
	if err != nil {
		return nil, err
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
		APIKey:    cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return es, nil
}
