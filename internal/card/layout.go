package card

import "strings"

// LayoutClass is the structural category a template declares support for.
// It is finer grained than the source layout. The set is open: plugin
// templates may declare classes not listed here.
type LayoutClass string

const (
	ClassNormal         LayoutClass = "normal"
	ClassTransformFront LayoutClass = "transform_front"
	ClassTransformBack  LayoutClass = "transform_back"
	ClassIxalan         LayoutClass = "ixalan"
	ClassMDFCFront      LayoutClass = "mdfc_front"
	ClassMDFCBack       LayoutClass = "mdfc_back"
	ClassMutate         LayoutClass = "mutate"
	ClassAdventure      LayoutClass = "adventure"
	ClassLeveler        LayoutClass = "leveler"
	ClassSaga           LayoutClass = "saga"
	ClassClass          LayoutClass = "class"
	ClassMiracle        LayoutClass = "miracle"
	ClassPlaneswalker   LayoutClass = "planeswalker"
	ClassPWTFFront      LayoutClass = "pw_tf_front"
	ClassPWTFBack       LayoutClass = "pw_tf_back"
	ClassPWMDFCFront    LayoutClass = "pw_mdfc_front"
	ClassPWMDFCBack     LayoutClass = "pw_mdfc_back"
	ClassSnow           LayoutClass = "snow"
	ClassBasic          LayoutClass = "basic"
	ClassPlanar         LayoutClass = "planar"
	ClassPrototype      LayoutClass = "prototype"
	ClassToken          LayoutClass = "token"
)

// KnownClasses lists the built-in layout classes in display order.
var KnownClasses = []LayoutClass{
	ClassNormal, ClassMDFCFront, ClassMDFCBack, ClassTransformFront, ClassTransformBack,
	ClassIxalan, ClassMutate, ClassAdventure, ClassLeveler, ClassSaga, ClassClass,
	ClassMiracle, ClassPlaneswalker, ClassPWTFFront, ClassPWTFBack, ClassPWMDFCFront,
	ClassPWMDFCBack, ClassSnow, ClassBasic, ClassPlanar, ClassPrototype, ClassToken,
}

// Supported source layouts. Anything else cannot be rendered.
var supportedLayouts = map[string]bool{
	"normal": true, "transform": true, "modal_dfc": true, "adventure": true,
	"leveler": true, "saga": true, "class": true, "planar": true, "token": true,
	"emblem": true, "meld": true, "basic": true, "mutate": true, "prototype": true,
}

// SupportedLayout reports whether records with the source layout can be
// classified.
func SupportedLayout(layout string) bool {
	return supportedLayouts[layout]
}

// ClassifyOptions carries the settings that change classification.
type ClassifyOptions struct {
	RenderMiracle bool
	RenderSnow    bool
}

// Classify picks the layout class for r. Unsupported layouts classify as
// the empty class.
func Classify(r Record, opts ClassifyOptions) LayoutClass {
	pw := r.IsType("Planeswalker")
	switch r.Layout {
	case "basic":
		return ClassBasic
	case "planar":
		return ClassPlanar
	case "token", "emblem":
		return ClassToken
	case "adventure":
		return ClassAdventure
	case "leveler":
		return ClassLeveler
	case "saga":
		return ClassSaga
	case "class":
		return ClassClass
	case "transform":
		switch {
		case pw && r.Front:
			return ClassPWTFFront
		case pw:
			return ClassPWTFBack
		case r.IsType("Saga"):
			return ClassSaga
		case !r.Front && r.IsType("Land") && len(r.Faces) > 1 && !isLandFace(r.Faces[0]):
			return ClassIxalan
		case r.Front:
			return ClassTransformFront
		default:
			return ClassTransformBack
		}
	case "meld":
		switch {
		case pw && r.Front:
			return ClassPWTFFront
		case pw:
			return ClassPWTFBack
		case r.Front:
			return ClassTransformFront
		default:
			return ClassTransformBack
		}
	case "modal_dfc":
		switch {
		case pw && r.Front:
			return ClassPWMDFCFront
		case pw:
			return ClassPWMDFCBack
		case r.Front:
			return ClassMDFCFront
		default:
			return ClassMDFCBack
		}
	case "normal", "mutate", "prototype":
		switch {
		case pw:
			return ClassPlaneswalker
		case r.HasKeyword("Mutate"):
			return ClassMutate
		case r.HasFrameEffect("miracle") && opts.RenderMiracle:
			return ClassMiracle
		case r.HasKeyword("Prototype"):
			return ClassPrototype
		case r.IsType("Snow") && opts.RenderSnow:
			return ClassSnow
		default:
			return ClassNormal
		}
	}
	return ""
}

func isLandFace(f Face) bool {
	return strings.Contains(f.TypeLine, "Land")
}
