package stimuli

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
)

// AssetPath returns the stimulus image path relative to the asset root,
// e.g. "Shapes/object007.png".
func AssetPath(c models.Category, id models.StimulusID) string {
	return path.Join(c.String(), fmt.Sprintf("object%03d.png", int(id)))
}

// Catalog locates stimulus images on disk.
type Catalog struct {
	root      string
	urlPrefix string
}

// NewCatalog returns a catalog rooted at root whose images are served under
// urlPrefix.
func NewCatalog(root, urlPrefix string) *Catalog {
	return &Catalog{root: root, urlPrefix: urlPrefix}
}

// Root is the directory images are read from.
func (c *Catalog) Root() string { return c.root }

// URL is where the browser fetches a stimulus image.
func (c *Catalog) URL(cat models.Category, id models.StimulusID) string {
	return path.Join(c.urlPrefix, AssetPath(cat, id))
}

// Resolve checks that every image of the category is present. Sampling for
// a category must not start before it resolves.
func (c *Catalog) Resolve(cat models.Category) error {
	if cat.Total() == 0 {
		return fmt.Errorf("unknown category %s", cat)
	}
	var missing []string
	for i := 1; i <= cat.Total(); i++ {
		p := filepath.Join(c.root, filepath.FromSlash(AssetPath(cat, models.StimulusID(i))))
		if _, err := os.Stat(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d of %d %s images missing, first %s", len(missing), cat.Total(), cat, missing[0])
	}
	return nil
}
