package templates

import (
	"embed"
	"io/fs"
	"strings"
)

// builtinDocs embeds the markdown descriptions of the built-in templates,
// one builtin/<id>.md per template.
//
//go:embed builtin
var builtinDocs embed.FS

// BuiltinDocsFS returns the embedded built-in template descriptions.
func BuiltinDocsFS() fs.FS {
	return builtinDocs
}

func builtinDescription(id string) string {
	data, err := fs.ReadFile(builtinDocs, "builtin/"+id+".md")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
