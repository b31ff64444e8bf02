package ledger

import (
	"path/filepath"

	"granth/internal/textutil"
)

// KeyPadWidth is the zero-pad width for numeric catalog keys in directory
// names, matching the source catalog's own layout.
const KeyPadWidth = 3

// DocumentDir returns the staging directory for a document:
// {staging}/{catalog-slug}/{padded-key}.
func DocumentDir(stagingDir, catalogSlug, key string) string {
	padded := textutil.PadIdentifier(key, KeyPadWidth)
	if catalogSlug == "" {
		return filepath.Join(stagingDir, padded)
	}
	return filepath.Join(stagingDir, catalogSlug, padded)
}
