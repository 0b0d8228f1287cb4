package models

import (
	"strings"
)

// SectionMarker отмечает подпуть секции страницы, такие пути не нормализуются
const SectionMarker = "#"

var indexDocuments = []string{"index.html", "index.htm"}

// NormalizePath сводит эквивалентные варианты корня и индексных документов
// к каноническому виду. Идемпотентна.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if strings.Contains(path, SectionMarker) {
		return path
	}

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" || path == "/index" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	for _, doc := range indexDocuments {
		if strings.HasSuffix(path, "/"+doc) {
			return strings.TrimSuffix(path, doc)
		}
	}

	return path
}
