// Package configs provides the embedded configuration template for
// docindex. Embedding it at build time keeps `docindex init` working
// in every distribution, source builds and binary releases alike.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// `docindex init`.
//
//go:embed docindex.example.yaml
var ConfigTemplate string
