/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package template implements the Jinja subset used by shipped chat
// templates: variable interpolation, if/elif/else, for loops with a loop
// object, set, comments, and a fixed filter set. It is a hand-written
// recursive-descent parser rather than an embedded general-purpose template
// engine, since the shipped templates never exceed this subset.
package template

import "errors"

// ErrTemplate is the sentinel wrapped by all template parse/render failures.
var ErrTemplate = errors.New("template error")

// ErrUnknownTemplateType names the case of a template string that does not
// parse as Jinja. No function in this package returns it; IsJinja reports
// that case as false.
var ErrUnknownTemplateType = errors.New("unknown template type")
