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

package autofill

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/marginalia/marginalia/pkg/assert"
)

func TestSupports(t *testing.T) {
	testCases := []struct {
		url      string
		expected bool
	}{
		{url: "https://arxiv.org/abs/1706.03762", expected: true},
		{url: "https://arxiv.org/pdf/1706.03762.pdf", expected: true},
		{url: "https://arxiv.org/pdf/1706.03762v5.pdf", expected: true},
		{url: "http://arxiv.org/abs/2301.00001", expected: true},
		{url: "https://papers.nips.cc/paper/7181-attention-is-all-you-need", expected: true},
		{url: "https://proceedings.neurips.cc/paper/2017/hash/3f5ee243547dee91fbd053c1c4a845aa-Abstract.html", expected: true},
		{url: "https://example.com/paper.pdf", expected: false},
		{url: "https://arxiv.org/list/cs.LG/recent", expected: false},
		{url: "", expected: false},
	}

	f := New(nil)
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			assert.Equal(t, f.Supports(tc.url), tc.expected, "support mismatch")
		})
	}
}

func TestAbstractURL(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
	}{
		{url: "https://arxiv.org/abs/1706.03762", expected: "https://arxiv.org/abs/1706.03762"},
		{url: "https://arxiv.org/pdf/1706.03762.pdf", expected: "https://arxiv.org/abs/1706.03762"},
		{url: "https://arxiv.org/pdf/1706.03762v5.pdf", expected: "https://arxiv.org/abs/1706.03762"},
		{url: "https://papers.nips.cc/paper/7181", expected: "https://papers.nips.cc/paper/7181"},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, ok := abstractURL(tc.url)
			if !ok {
				t.Fatal("url should be supported")
			}
			assert.Equal(t, got, tc.expected, "abstract url mismatch")
		})
	}
}

func TestExtractArxiv(t *testing.T) {
	html := `<html><body>
<h1 class="title mathjax"><span class="descriptor">Title:</span>Attention Is All You Need</h1>
<div class="authors"><span class="descriptor">Authors:</span>Ashish Vaswani, Noam Shazeer</div>
</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}

	got := ExtractArxiv(doc)
	want := Metadata{
		Title:  "Attention Is All You Need",
		Author: "Ashish Vaswani, Noam Shazeer",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractNeurIPS(t *testing.T) {
	html := `<html><body>
<h4>Attention is All you Need</h4>
<p class="meta"><i>Ashish Vaswani, Noam Shazeer</i></p>
</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}

	got := ExtractNeurIPS(doc)
	want := Metadata{
		Title:  "Attention is All you Need",
		Author: "Ashish Vaswani, Noam Shazeer",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}
