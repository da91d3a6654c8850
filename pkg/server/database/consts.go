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

package database

const (
	// TokenTypeEmailConfirmation is a type of a token for confirming an email address
	TokenTypeEmailConfirmation = "email_confirmation"
)

const (
	// AnnotationTypePoint is an annotation marking a single coordinate on a page
	AnnotationTypePoint = "point"
	// AnnotationTypeRect is an annotation marking a bounding box on a page
	AnnotationTypeRect = "rect"
)
