package chunk

import "strings"

// DocTypeDefault is assigned when no category marker matches.
const DocTypeDefault = "docs"

// DocTypes lists the known document categories, used for stats
// aggregation and type filtering.
var DocTypes = []string{
	"docs", "bugfix", "best-practice", "api",
	"architecture", "changelog", "setup", "readme", "test",
}

// docTypeMarkers maps path substrings to categories, checked in order.
// More specific markers come first so "api-changelog" and similar
// paths resolve deterministically.
var docTypeMarkers = []struct {
	markers []string
	docType string
}{
	{[]string{"bugfix", "bug-fix"}, "bugfix"},
	{[]string{"best-practice", "bestpractice"}, "best-practice"},
	{[]string{"api"}, "api"},
	{[]string{"architect"}, "architecture"},
	{[]string{"changelog", "release"}, "changelog"},
	{[]string{"setup", "install"}, "setup"},
	{[]string{"readme"}, "readme"},
	{[]string{"test"}, "test"},
}

// DetectDocType derives a chunk's category from its source path.
func DetectDocType(path string) string {
	p := strings.ToLower(path)
	for _, entry := range docTypeMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(p, marker) {
				return entry.docType
			}
		}
	}
	return DocTypeDefault
}
