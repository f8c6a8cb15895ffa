// Package archive keeps a copy of every announcement document that produced
// a match, named by its content digest.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/storage"
)

// DefaultPrefix is the folder documents are archived under.
const DefaultPrefix = "editais"

// Archiver implements contest.Archiver on a blob store.
type Archiver struct {
	blobs  storage.BlobStore
	hasher contest.Hasher
	prefix string
}

// New returns an Archiver writing under prefix.
func New(blobs storage.BlobStore, hasher contest.Hasher, prefix string) *Archiver {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Archiver{blobs: blobs, hasher: hasher, prefix: prefix}
}

// Archive stores body as <prefix>/<sha256><ext> and returns the object URI.
// Identical documents map to the same object.
func (a *Archiver) Archive(ctx context.Context, documentURL string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("archive %s: empty document", documentURL)
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}
	ext, contentType := kind(documentURL)
	uri, err := a.blobs.PutObject(ctx, path.Join(a.prefix, digest+ext), contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", documentURL, err)
	}
	return uri, nil
}

func kind(documentURL string) (string, string) {
	if u, err := url.Parse(documentURL); err == nil {
		if strings.EqualFold(path.Ext(u.Path), ".html") || strings.EqualFold(path.Ext(u.Path), ".htm") {
			return ".html", "text/html"
		}
	}
	return ".pdf", "application/pdf"
}
