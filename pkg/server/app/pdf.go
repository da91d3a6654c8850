/* Copyright 2025 Marginalia Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/pkg/errors"
)

// MaxPDFSize is the maximum size of a remote PDF the server will fetch
const MaxPDFSize = 5 << 20

var (
	// ErrPDFFetch is an error for a remote PDF that could not be fetched
	ErrPDFFetch = errors.New("The remote file could not be fetched")
	// ErrPDFTooLarge is an error for a remote PDF over the size cap
	ErrPDFTooLarge = errors.New("The remote file is too large")
	// ErrPDFSizeUnknown is an error for a remote server that does not declare a size
	ErrPDFSizeUnknown = errors.New("The remote server did not declare a file size")
)

func (a *App) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}

	return http.DefaultClient
}

// pdfCachePath derives the cache file path for a document from its URL
func (a *App) pdfCachePath(doc database.Document) string {
	sum := sha256.Sum256([]byte(doc.URL))
	name := fmt.Sprintf("%s.pdf", hex.EncodeToString(sum[:]))

	return filepath.Join(a.PDFCacheDir, name)
}

// GetDocumentPDF returns the path of a locally cached copy of the
// document's PDF, downloading it on a cache miss. The download is rejected
// if the remote does not declare a size or declares one over MaxPDFSize.
func (a *App) GetDocumentPDF(doc database.Document) (string, error) {
	dest := a.pdfCachePath(doc)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := os.MkdirAll(a.PDFCacheDir, 0755); err != nil {
		return "", errors.Wrap(err, "creating pdf cache directory")
	}

	res, err := a.httpClient().Get(doc.URL)
	if err != nil {
		return "", errors.Wrapf(ErrPDFFetch, "fetching %s: %v", doc.URL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", errors.Wrapf(ErrPDFFetch, "fetching %s: status %d", doc.URL, res.StatusCode)
	}
	if res.ContentLength < 0 {
		return "", ErrPDFSizeUnknown
	}
	if res.ContentLength > MaxPDFSize {
		return "", ErrPDFTooLarge
	}

	tmp, err := os.CreateTemp(a.PDFCacheDir, "download-*.pdf")
	if err != nil {
		return "", errors.Wrap(err, "creating temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(res.Body, MaxPDFSize)); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "writing pdf to disk")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing temporary file")
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", errors.Wrap(err, "moving pdf into cache")
	}

	return dest, nil
}

// PrunePDFCache removes cached PDFs that have not been touched within
// maxAge. It is run periodically by the server process.
func (a *App) PrunePDFCache(maxAge time.Duration) error {
	entries, err := os.ReadDir(a.PDFCacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading pdf cache directory")
	}

	cutoff := a.Clock.Now().Add(-maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			log.ErrorWrap(err, "reading cache entry info")
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(a.PDFCacheDir, entry.Name())); err != nil {
				log.ErrorWrap(err, "removing cache entry")
			}
		}
	}

	return nil
}
