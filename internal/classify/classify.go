// Package classify resolves an inbound ingestion request to exactly one
// (Source, Offer) pair: three resolution tiers tried in order, the first
// one that yields a match wins.
package classify

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"leadgen/internal/models"
)

// Error codes surfaced to the API layer, matched 1:1 against HTTP status by
// the caller (api.leadErrorStatus).
var (
	ErrInvalidSourceKey          = errors.New("invalid_source_key")
	ErrSourceNotFound            = errors.New("source_not_found")
	ErrUnmappedSource            = errors.New("unmapped_source")
	ErrAmbiguousSourceMapping    = errors.New("ambiguous_source_mapping")
	ErrSourceInactive            = errors.New("source_inactive")
	ErrOfferInactive             = errors.New("offer_inactive")
	ErrMissingHostHeader         = errors.New("missing_host_header")
)

var sourceKeyRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{1,127}$`)

// Store is the read-only slice of internal/store that classify depends on.
type Store interface {
	GetSourceByID(ctx context.Context, id int64) (*models.Source, error)
	GetSourceByKey(ctx context.Context, key string) (*models.Source, error)
	FindSourcesByHostname(ctx context.Context, hostname string) ([]models.Source, error)
	GetOffer(ctx context.Context, id int64) (*models.Offer, error)
}

// Request carries the three possible identifying fields an ingestion call
// may supply. At least one of SourceID, SourceKey, or Hostname must be set.
type Request struct {
	SourceID *int64
	SourceKey *string
	Hostname  string
	Path      string
}

// Classifier resolves Requests against Store.
type Classifier struct {
	store Store
}

// New builds a Classifier over the given store.
func New(store Store) *Classifier {
	return &Classifier{store: store}
}

// Resolve implements the three-tier resolution order: explicit source_id,
// then source_key (validated against sourceKeyRE before lookup), then
// hostname+path_prefix ranked by longest matching prefix, with ties
// surfaced as ErrAmbiguousSourceMapping.
func (c *Classifier) Resolve(ctx context.Context, req Request) (*models.Source, *models.Offer, error) {
	source, err := c.resolveSource(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if !source.IsActive {
		return nil, nil, ErrSourceInactive
	}
	offer, err := c.store.GetOffer(ctx, source.OfferID)
	if err != nil {
		return nil, nil, err
	}
	if offer == nil || !offer.IsActive {
		return nil, nil, ErrOfferInactive
	}
	return source, offer, nil
}

func (c *Classifier) resolveSource(ctx context.Context, req Request) (*models.Source, error) {
	if req.SourceID != nil {
		source, err := c.store.GetSourceByID(ctx, *req.SourceID)
		if err != nil {
			return nil, err
		}
		if source == nil {
			return nil, ErrSourceNotFound
		}
		return source, nil
	}

	if req.SourceKey != nil {
		key := *req.SourceKey
		if !sourceKeyRE.MatchString(key) {
			return nil, ErrInvalidSourceKey
		}
		source, err := c.store.GetSourceByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if source == nil {
			return nil, ErrSourceNotFound
		}
		return source, nil
	}

	if req.Hostname == "" {
		return nil, ErrMissingHostHeader
	}

	hostname := normalizeHostname(req.Hostname)
	candidates, err := c.store.FindSourcesByHostname(ctx, hostname)
	if err != nil {
		return nil, err
	}
	return rankByPathPrefix(candidates, normalizePath(req.Path))
}

// rankByPathPrefix picks the active candidate whose PathPrefix is the
// longest prefix of path, treating a null PathPrefix as a valid but
// lowest-ranked match (it matches any path). A tie in rank between two
// distinct candidates is ambiguous and must fail closed rather than pick
// arbitrarily.
func rankByPathPrefix(candidates []models.Source, path string) (*models.Source, error) {
	var best *models.Source
	bestLen := -2
	ambiguous := false

	for i := range candidates {
		cand := &candidates[i]
		if !cand.IsActive {
			continue
		}

		l := -1
		if cand.PathPrefix != nil {
			prefix := *cand.PathPrefix
			if !hasPrefix(path, prefix) {
				continue
			}
			l = len(prefix)
		}

		switch {
		case l > bestLen:
			best = cand
			bestLen = l
			ambiguous = false
		case l == bestLen:
			ambiguous = true
		}
	}

	if best == nil {
		return nil, ErrUnmappedSource
	}
	if ambiguous {
		return nil, ErrAmbiguousSourceMapping
	}
	return best, nil
}

func hasPrefix(path, prefix string) bool {
	if len(prefix) > len(path) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// normalizeHostname lowercases, trims, and strips a trailing port from a
// Host header value, leaving a bracketed IPv6 literal's brackets intact.
func normalizeHostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end != -1 {
			return host[:end+1]
		}
		return host
	}
	if idx := strings.LastIndexByte(host, ':'); idx != -1 {
		return host[:idx]
	}
	return host
}

// normalizePath defaults an empty request path to "/" and ensures every
// path begins with a leading slash before prefix matching.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
