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

// Package autofill scrapes document metadata from known publisher
// abstract pages
package autofill

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// Metadata is the scraped document metadata
type Metadata struct {
	Title  string
	Author string
}

var (
	arxivPattern   = regexp.MustCompile(`^https?://arxiv\.org/(abs|pdf)/([0-9]+\.[0-9]+)(v[0-9]+)?(\.pdf)?$`)
	neuripsPattern = regexp.MustCompile(`^https?://(papers\.nips\.cc|proceedings\.neurips\.cc)/paper.*$`)
)

// Fetcher retrieves metadata for documents hosted by known publishers
type Fetcher struct {
	Client *http.Client
}

// New creates a new fetcher using the given HTTP client
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{Client: client}
}

// Supports reports whether the URL belongs to a known publisher
func (f *Fetcher) Supports(rawURL string) bool {
	_, ok := abstractURL(rawURL)
	return ok
}

// abstractURL maps a document URL to the abstract page carrying its
// metadata. A PDF link on arXiv is rewritten to the abs page.
func abstractURL(rawURL string) (string, bool) {
	if m := arxivPattern.FindStringSubmatch(rawURL); m != nil {
		return fmt.Sprintf("https://arxiv.org/abs/%s", m[2]), true
	}
	if neuripsPattern.MatchString(rawURL) {
		return rawURL, true
	}

	return "", false
}

// Fetch downloads the abstract page for the given document URL and
// extracts its metadata
func (f *Fetcher) Fetch(rawURL string) (Metadata, error) {
	target, ok := abstractURL(rawURL)
	if !ok {
		return Metadata{}, errors.Errorf("unsupported url %s", rawURL)
	}

	res, err := f.Client.Get(target)
	if err != nil {
		return Metadata{}, errors.Wrapf(err, "fetching %s", target)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Metadata{}, errors.Errorf("fetching %s: status %d", target, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "parsing abstract page")
	}

	if arxivPattern.MatchString(rawURL) {
		return ExtractArxiv(doc), nil
	}

	return ExtractNeurIPS(doc), nil
}

// ExtractArxiv extracts metadata from an arXiv abstract page
func ExtractArxiv(doc *goquery.Document) Metadata {
	title := doc.Find("h1.title").First().Text()
	title = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(title), "Title:"))

	author := doc.Find("div.authors").First().Text()
	author = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(author), "Authors:"))

	return Metadata{
		Title:  title,
		Author: author,
	}
}

// ExtractNeurIPS extracts metadata from a NeurIPS proceedings abstract page
func ExtractNeurIPS(doc *goquery.Document) Metadata {
	title := strings.TrimSpace(doc.Find("h4").First().Text())
	author := strings.TrimSpace(doc.Find("h4 ~ p i").First().Text())

	return Metadata{
		Title:  title,
		Author: author,
	}
}
