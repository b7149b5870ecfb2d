package usd

import "fmt"

// assetPreviewsAPI is the applied schema carrying thumbnail metadata.
const assetPreviewsAPI = "AssetPreviewsAPI"

// defaultImageAttr is the thumbnail attribute authored by SetDefaultThumbnail.
const defaultImageAttr = "previews:thumbnails:default:defaultImage"

// SetDefaultThumbnail records imagePath as the stage's default preview
// thumbnail on its default prim and saves the stage.
func SetDefaultThumbnail(s *Stage, imagePath string) error {
	root := s.DefaultRoot()
	if root == nil {
		return fmt.Errorf("%w: stage has no default prim to carry a thumbnail", ErrNotBoundable)
	}
	root.ApplyAPI(assetPreviewsAPI)
	root.SetAttr(defaultImageAttr, "asset", imagePath)
	if err := s.Save(); err != nil {
		return fmt.Errorf("saving thumbnail metadata: %w", err)
	}
	return nil
}

// DefaultThumbnail returns the authored default thumbnail asset path, if any.
func DefaultThumbnail(s *Stage) (string, bool) {
	root := s.DefaultRoot()
	if root == nil {
		return "", false
	}
	a := root.GetAttr(defaultImageAttr)
	if a == nil {
		return "", false
	}
	path, ok := a.Value.(string)
	return path, ok && path != ""
}
