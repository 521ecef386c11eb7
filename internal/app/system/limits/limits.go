// internal/app/system/limits/limits.go
package limits

// Request body size limits.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBodySize is the maximum size for JSON API request bodies.
	MaxJSONBodySize = 64 << 10 // 64 KB

	// MaxTitleLen caps task and document titles.
	MaxTitleLen = 200

	// MaxDescriptionLen caps expense descriptions.
	MaxDescriptionLen = 500

	// MaxCategoryLen caps expense categories.
	MaxCategoryLen = 50

	// MaxInstitutionLen caps bank institution names.
	MaxInstitutionLen = 120
)
