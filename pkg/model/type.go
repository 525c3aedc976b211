package model

import (
	"fmt"
	"strings"
)

// AssetType is the closed set of asset kinds the bundler knows about.
type AssetType int

const (
	Stylesheet AssetType = iota + 1
	Script
)

var AssetTypes = []AssetType{Stylesheet, Script}

// Format is a source file extension without the leading dot.
type Format string

const (
	FormatSass Format = "sass"
	FormatSCSS Format = "scss"
	FormatCSS  Format = "css"
	FormatJS   Format = "js"
)

// TemplateExt is appended to a format extension to mark a templated source,
// e.g. "site.css.tmpl".
const TemplateExt = ".tmpl"

type UnknownTypeError struct {
	Type string
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown asset type: '%s'", e.Type)
}

// ParseAssetType accepts the configuration spelling of a type ("stylesheets",
// "javascripts") as well as the served file extension ("css", "js").
func ParseAssetType(s string) (AssetType, error) {
	switch strings.TrimSpace(s) {
	case "stylesheets", "css":
		return Stylesheet, nil
	case "javascripts", "js":
		return Script, nil
	}
	return 0, UnknownTypeError{Type: s}
}

func (t AssetType) String() string {
	switch t {
	case Stylesheet:
		return "stylesheets"
	case Script:
		return "javascripts"
	}
	return fmt.Sprintf("AssetType(%d)", int(t))
}

// Formats returns the source formats in resolution priority order.
// Compiled stylesheet dialects win over plain css when names collide.
func (t AssetType) Formats() []Format {
	switch t {
	case Stylesheet:
		return []Format{FormatSass, FormatSCSS, FormatCSS}
	case Script:
		return []Format{FormatJS}
	}
	return nil
}

// Ext is the extension of the served, combined asset.
func (t AssetType) Ext() string {
	switch t {
	case Stylesheet:
		return "css"
	case Script:
		return "js"
	}
	return ""
}

func (t AssetType) MimeType() string {
	switch t {
	case Stylesheet:
		return "text/css"
	case Script:
		return "text/javascript"
	}
	return "application/octet-stream"
}

func (t AssetType) Valid() bool {
	return t == Stylesheet || t == Script
}

// Compiled reports whether the format needs a dialect compiler before it is css.
func (f Format) Compiled() bool {
	return f == FormatSass || f == FormatSCSS
}
