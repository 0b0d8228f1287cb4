// Package web встроенные статические ресурсы
package web

import (
	_ "embed"
)

// TrackerJS скрипт трекера для страниц сайта
//
//go:embed tracker.js
var TrackerJS []byte
