// Package docs lists the tier-protected document corpus. Access is
// cumulative: a tier sees its own folder plus every lower tier's.
package docs

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// tierFolders maps each access tier to the document subfolders it may see.
var tierFolders = map[string][]string{
	"Nivel 1": {"nivel_1"},
	"Nivel 2": {"nivel_1", "nivel_2"},
	"Nivel 3": {"nivel_1", "nivel_2", "nivel_3"},
}

// Document is one listed file.
type Document struct {
	Folder string
	Name   string
	Path   string
}

// Viewer reads the document corpus directory tree.
type Viewer struct {
	root string
}

// NewViewer creates a viewer over the documents directory.
func NewViewer(root string) *Viewer {
	return &Viewer{root: root}
}

// ListForTier returns every document the tier may access, grouped by folder
// order from least to most privileged. An unknown tier sees nothing.
func (v *Viewer) ListForTier(tier string) ([]Document, error) {
	folders, ok := tierFolders[tier]
	if !ok {
		return nil, nil
	}
	if _, err := os.Stat(v.root); os.IsNotExist(err) {
		return nil, fmt.Errorf("documents directory %s not found", v.root)
	}

	var out []Document
	for _, folder := range folders {
		dir := filepath.Join(v.root, folder)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warnf("Failed to list document folder %s: %v", dir, err)
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			out = append(out, Document{
				Folder: folder,
				Name:   e.Name(),
				Path:   filepath.Join(dir, e.Name()),
			})
		}
	}
	return out, nil
}

// Read returns the content of one document.
func (v *Viewer) Read(doc Document) (string, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", doc.Name, err)
	}
	return string(data), nil
}
