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
	"os"

	"github.com/marginalia/marginalia/pkg/clock"
	"github.com/marginalia/marginalia/pkg/server/mailer"
)

// NewTest returns an app instance for testing. The database connection
// is left for the caller to set.
func NewTest() App {
	return App{
		Clock:        clock.NewMock(),
		EmailBackend: mailer.NewStdoutBackend(),
		WebURL:       "http://mock.url",
		PDFCacheDir:  os.TempDir(),
	}
}
