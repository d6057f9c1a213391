// Package workflow describes the six image-editing workflows: their
// parameters, validation rules and the transformation string each one
// sends to the remote image service.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
)

// Kind identifies one of the mutually exclusive workflows.
type Kind int

const (
	Expand Kind = iota + 1
	Replace
	Upscale
	RemoveObject
	Recolor
	Restore
)

// All lists the workflows in gallery order.
var All = []Kind{Expand, Replace, Upscale, RemoveObject, Recolor, Restore}

var names = map[Kind]string{
	Expand:       "expand",
	Replace:      "replace",
	Upscale:      "upscale",
	RemoveObject: "remove_object",
	Recolor:      "recolor",
	Restore:      "restore",
}

var titles = map[Kind]string{
	Expand:       "Expand Photo",
	Replace:      "Linkedin Photo",
	Upscale:      "HD Photo Quality",
	RemoveObject: "Remove Object",
	Recolor:      "Change Color",
	Restore:      "Restore Old Photo",
}

var publicIDPrefixes = map[Kind]string{
	Expand:       "genfill-image-",
	Replace:      "replace-image-",
	Upscale:      "upscale-image-",
	RemoveObject: "me/rm-",
	Recolor:      "recolor-image-",
	Restore:      "restore-image-",
}

func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Title is the label shown on the gallery button.
func (k Kind) Title() string {
	return titles[k]
}

// PublicIDPrefix is prepended to the generated remote object id.
func (k Kind) PublicIDPrefix() string {
	return publicIDPrefixes[k]
}

func (k Kind) Valid() bool {
	_, ok := names[k]
	return ok
}

// Parse accepts either the machine name ("remove_object") or the
// gallery title ("Remove Object"), case-insensitively.
func Parse(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range All {
		if strings.EqualFold(s, names[k]) || strings.EqualFold(s, titles[k]) {
			return k, nil
		}
	}
	return 0, apperr.Validation("parse workflow", "unknown workflow %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
