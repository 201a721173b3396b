package classify

import (
	"fmt"
	"slices"
)

// Names accepted by Named.
const (
	KindField       = "field"
	KindLDT         = "ldt"
	KindIsWord      = "isword"
	KindImagePrefix = "image-prefix"
	KindCongruency  = "congruency"
	KindExpr        = "expr"
)

// Spec names a classifier in task configuration.
type Spec struct {
	Kind       string `yaml:"kind" validate:"required,oneof=field ldt isword image-prefix congruency expr"`
	Field      string `yaml:"field" validate:"required_if=Kind field"`
	Expression string `yaml:"expression" validate:"required_if=Kind expr"`
}

// Named builds the classifier described by spec for a session with the given
// header.
func Named(spec Spec, header []string) (Classifier, error) {
	switch spec.Kind {
	case KindField:
		if spec.Field == "" {
			return nil, fmt.Errorf("field classifier needs a field name")
		}
		return Field(spec.Field), nil
	case KindLDT:
		return ForLDTHeader(header), nil
	case KindIsWord:
		return IsWord, nil
	case KindImagePrefix:
		return ImagePrefix, nil
	case KindCongruency:
		return Congruency, nil
	case KindExpr:
		c, err := Expr(spec.Expression)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", spec.Kind)
	}
}

// RequiredColumns lists the session columns the classifier described by spec
// reads. A session lacking any of them cannot be classified. Expressions
// report none: a field they name may be absent and evaluates to nil.
func RequiredColumns(spec Spec, header []string) []string {
	switch spec.Kind {
	case KindField:
		return []string{spec.Field}
	case KindLDT:
		if slices.Contains(header, "isword") {
			return []string{"isword"}
		}
		return []string{"image"}
	case KindIsWord:
		return []string{"isword"}
	case KindImagePrefix:
		return []string{"image"}
	case KindCongruency:
		return []string{"box_img", "alignment"}
	default:
		return nil
	}
}
