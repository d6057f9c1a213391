package workflow

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
)

var (
	AspectRatios = []string{"1:1", "4:3", "16:9"}
	Gravities    = []string{"center", "north", "south", "east", "west"}
)

const (
	MinSizePixels   = 100
	MaxSizePixels   = 1000
	MinScaleFactor  = 1
	MaxScaleFactor  = 4
	maxPromptLength = 200

	// promptReserved are the characters Cloudinary reads as separators
	// inside a transformation.
	promptReserved = ",;:/|$!()\\"
)

// Params carries the user-supplied inputs for every workflow. Only the
// fields owned by the selected workflow may be set.
type Params struct {
	AspectRatio   string `json:"aspect_ratio,omitempty"`
	Gravity       string `json:"gravity,omitempty"`
	SizePixels    int    `json:"size_pixels,omitempty"`
	ItemToReplace string `json:"item_to_replace,omitempty"`
	ReplaceWith   string `json:"replace_with,omitempty"`
	ScaleFactor   int    `json:"scale_factor,omitempty"`
	ItemToRemove  string `json:"item_to_remove,omitempty"`
	ItemToRecolor string `json:"item_to_recolor,omitempty"`
	NewColor      string `json:"new_color,omitempty"`
}

// Defaults returns the values the UI starts each workflow with.
func Defaults(k Kind) Params {
	switch k {
	case Expand:
		return Params{AspectRatio: "1:1", Gravity: "center", SizePixels: 500}
	case Replace:
		return Params{ItemToReplace: "T Shirt", ReplaceWith: "Professional Black Blazer"}
	case Upscale:
		return Params{ScaleFactor: 2}
	case RemoveObject:
		return Params{ItemToRemove: "bottle"}
	case Recolor:
		return Params{ItemToRecolor: "armchair", NewColor: "FF00FF"}
	default:
		return Params{}
	}
}

// present lists the JSON names of the fields that carry a value.
func (p Params) present() []string {
	var fields []string
	add := func(name string, ok bool) {
		if ok {
			fields = append(fields, name)
		}
	}
	add("aspect_ratio", p.AspectRatio != "")
	add("gravity", p.Gravity != "")
	add("size_pixels", p.SizePixels != 0)
	add("item_to_replace", p.ItemToReplace != "")
	add("replace_with", p.ReplaceWith != "")
	add("scale_factor", p.ScaleFactor != 0)
	add("item_to_remove", p.ItemToRemove != "")
	add("item_to_recolor", p.ItemToRecolor != "")
	add("new_color", p.NewColor != "")
	return fields
}

var owned = map[Kind][]string{
	Expand:       {"aspect_ratio", "gravity", "size_pixels"},
	Replace:      {"item_to_replace", "replace_with"},
	Upscale:      {"scale_factor"},
	RemoveObject: {"item_to_remove"},
	Recolor:      {"item_to_recolor", "new_color"},
	Restore:      {},
}

// Normalize trims surrounding whitespace from the text inputs.
func (p Params) Normalize() Params {
	p.AspectRatio = strings.TrimSpace(p.AspectRatio)
	p.Gravity = strings.ToLower(strings.TrimSpace(p.Gravity))
	p.ItemToReplace = strings.TrimSpace(p.ItemToReplace)
	p.ReplaceWith = strings.TrimSpace(p.ReplaceWith)
	p.ItemToRemove = strings.TrimSpace(p.ItemToRemove)
	p.ItemToRecolor = strings.TrimSpace(p.ItemToRecolor)
	p.NewColor = strings.TrimSpace(p.NewColor)
	return p
}

// Validate checks p against the schema of workflow k. Every failure is
// an apperr ValidationFailure.
func (p Params) Validate(k Kind) error {
	const op = "validate params"
	fields, ok := owned[k]
	if !ok {
		return apperr.Validation(op, "unknown workflow %d", int(k))
	}

	for _, name := range p.present() {
		if !slices.Contains(fields, name) {
			return apperr.Validation(op, "%s is not valid for the %s workflow", name, k)
		}
	}

	switch k {
	case Expand:
		if p.AspectRatio == "" {
			return missing(op, "aspect_ratio")
		}
		if !slices.Contains(AspectRatios, p.AspectRatio) {
			return apperr.Validation(op, "aspect_ratio must be one of %s, got %q", strings.Join(AspectRatios, ", "), p.AspectRatio)
		}
		if p.Gravity == "" {
			return missing(op, "gravity")
		}
		if !slices.Contains(Gravities, p.Gravity) {
			return apperr.Validation(op, "gravity must be one of %s, got %q", strings.Join(Gravities, ", "), p.Gravity)
		}
		if p.SizePixels == 0 {
			return missing(op, "size_pixels")
		}
		if p.SizePixels < MinSizePixels || p.SizePixels > MaxSizePixels {
			return apperr.Validation(op, "size_pixels must be between %d and %d, got %d", MinSizePixels, MaxSizePixels, p.SizePixels)
		}
	case Replace:
		if err := requireText(op, "item_to_replace", p.ItemToReplace); err != nil {
			return err
		}
		if err := requireText(op, "replace_with", p.ReplaceWith); err != nil {
			return err
		}
	case Upscale:
		if p.ScaleFactor == 0 {
			return missing(op, "scale_factor")
		}
		if p.ScaleFactor < MinScaleFactor || p.ScaleFactor > MaxScaleFactor {
			return apperr.Validation(op, "scale_factor must be between %d and %d, got %d", MinScaleFactor, MaxScaleFactor, p.ScaleFactor)
		}
	case RemoveObject:
		if err := requireText(op, "item_to_remove", p.ItemToRemove); err != nil {
			return err
		}
	case Recolor:
		if err := requireText(op, "item_to_recolor", p.ItemToRecolor); err != nil {
			return err
		}
		if err := requireText(op, "new_color", p.NewColor); err != nil {
			return err
		}
	}
	return nil
}

func missing(op, field string) error {
	return apperr.Validation(op, "%s is required", field)
}

func requireText(op, field, value string) error {
	if value == "" {
		return missing(op, field)
	}
	if len(value) > maxPromptLength {
		return apperr.Validation(op, "%s must be at most %d characters", field, maxPromptLength)
	}
	if strings.ContainsAny(value, promptReserved) {
		return apperr.Validation(op, "%s must not contain any of %s", field, promptReserved)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return apperr.Validation(op, "%s must not contain control characters", field)
		}
	}
	return nil
}

// Transformation renders the transformation string for k. Params must
// already be valid for k, so free-text values hold no separators; the
// delivery URL builder percent-encodes what remains.
func Transformation(k Kind, p Params) string {
	if k == Expand {
		return fmt.Sprintf("ar_%s,b_gen_fill,c_pad,g_%s,w_%d", p.AspectRatio, p.Gravity, p.SizePixels)
	}
	if effect := Effect(k, p); effect != "" {
		return "e_" + effect
	}
	return ""
}

// Effect renders the effect part of the transformation, e.g.
// "gen_remove:prompt_bottle;multiple_true". Expand has no effect string;
// it is expressed as a generative-fill pad.
func Effect(k Kind, p Params) string {
	switch k {
	case Replace:
		return fmt.Sprintf("gen_replace:from_%s;to_%s", p.ItemToReplace, p.ReplaceWith)
	case Upscale:
		return fmt.Sprintf("upscale:scale_%d", p.ScaleFactor)
	case RemoveObject:
		return fmt.Sprintf("gen_remove:prompt_%s;multiple_true", p.ItemToRemove)
	case Recolor:
		return fmt.Sprintf("gen_recolor:prompt_%s;to-color_%s;multiple_true", p.ItemToRecolor, p.NewColor)
	case Restore:
		return "gen_restore"
	default:
		return ""
	}
}
