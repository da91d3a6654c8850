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
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/marginalia/marginalia/pkg/assert"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/pkg/errors"
)

func TestGetDocumentPDF(t *testing.T) {
	content := []byte("%PDF-1.4 body")
	requestCount := 0
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Write(content)
	}))
	defer remote.Close()

	a := NewTest()
	a.PDFCacheDir = t.TempDir()

	doc := database.Document{URL: fmt.Sprintf("%s/paper.pdf", remote.URL)}

	path, err := a.GetDocumentPDF(doc)
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, string(got), string(content), "cached content mismatch")

	// the second call is served from the cache
	if _, err := a.GetDocumentPDF(doc); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, requestCount, 1, "request count mismatch")
}

func TestGetDocumentPDFTooLarge(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(MaxPDFSize+1))
		w.WriteHeader(http.StatusOK)
	}))
	defer remote.Close()

	a := NewTest()
	a.PDFCacheDir = t.TempDir()

	doc := database.Document{URL: fmt.Sprintf("%s/paper.pdf", remote.URL)}

	_, err := a.GetDocumentPDF(doc)
	assert.Equal(t, err, ErrPDFTooLarge, "error mismatch")
}

func TestGetDocumentPDFSizeUnknown(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a flushed chunked response carries no content length
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write([]byte("chunk"))
		w.(http.Flusher).Flush()
	}))
	defer remote.Close()

	a := NewTest()
	a.PDFCacheDir = t.TempDir()

	doc := database.Document{URL: fmt.Sprintf("%s/paper.pdf", remote.URL)}

	_, err := a.GetDocumentPDF(doc)
	assert.Equal(t, err, ErrPDFSizeUnknown, "error mismatch")
}

func TestGetDocumentPDFRemoteError(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer remote.Close()

	a := NewTest()
	a.PDFCacheDir = t.TempDir()

	doc := database.Document{URL: fmt.Sprintf("%s/missing.pdf", remote.URL)}

	_, err := a.GetDocumentPDF(doc)
	assert.Equal(t, errors.Cause(err), ErrPDFFetch, "error mismatch")
}

func TestPrunePDFCache(t *testing.T) {
	a := NewTest()
	a.PDFCacheDir = t.TempDir()

	old := a.PDFCacheDir + "/old.pdf"
	fresh := a.PDFCacheDir + "/fresh.pdf"
	if err := os.WriteFile(old, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fresh, []byte("fresh"), 0644); err != nil {
		t.Fatal(err)
	}

	// the mock clock sits in the past, so every real file looks fresh
	// unless its mtime is pushed back
	cutoff := a.Clock.Now()
	if err := os.Chtimes(old, cutoff.Add(-48*time.Hour), cutoff.Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(fresh, cutoff.Add(-time.Hour), cutoff.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	if err := a.PrunePDFCache(24 * time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old cache entry should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh cache entry should remain")
	}
}
