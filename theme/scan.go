package theme

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	backFile   = regexp.MustCompile(`(?i)^back\.(png|jpg|jpeg|webp|svg)$`)
	imageFile  = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|webp|svg)$`)
	clipFile   = regexp.MustCompile(`(?i)\.(mp4|webm|mov)$`)
	secretFile = regexp.MustCompile(`(?i)^secret[._-]`)
)

// Scan builds a catalog from a directory tree laid out as <theme>/<file>.
// Card identifiers are urlPrefix/<theme>/<file>. back.* becomes the theme's
// back image; files named SECRET.* (or secret_*, secret-*) are secret cards.
// Files with other extensions are ignored.
func Scan(fsys fs.FS, urlPrefix string) (*Catalog, error) {
	cat := NewCatalog()

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read themes root: %w", err)
	}
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}
		t, err := scanTheme(fsys, dir.Name(), urlPrefix)
		if err != nil {
			return nil, err
		}
		if t.Back == "" && len(t.Cards) == 0 {
			continue
		}
		cat.Register(t)
	}
	return cat, nil
}

func scanTheme(fsys fs.FS, name, urlPrefix string) (Theme, error) {
	t := Theme{Name: name}

	files, err := fs.ReadDir(fsys, name)
	if err != nil {
		return t, fmt.Errorf("read theme %s: %w", name, err)
	}

	var images, clips []Card
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		fileName := f.Name()
		url := joinURL(urlPrefix, name, fileName)
		secret := secretFile.MatchString(fileName)
		switch {
		case backFile.MatchString(fileName):
			t.Back = url
		case imageFile.MatchString(fileName):
			images = append(images, Card{ID: url, Kind: StaticImage, Secret: secret})
		case clipFile.MatchString(fileName):
			clips = append(clips, Card{ID: url, Kind: MotionClip, Secret: secret})
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
	sort.Slice(clips, func(i, j int) bool { return clips[i].ID < clips[j].ID })
	t.Cards = append(images, clips...)
	return t, nil
}

func joinURL(prefix, themeName, fileName string) string {
	if strings.Contains(prefix, "://") {
		return strings.TrimRight(prefix, "/") + "/" + path.Join(themeName, fileName)
	}
	return path.Join(prefix, themeName, fileName)
}
