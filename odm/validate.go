package odm

import (
	"regexp"

	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
)

// validateRecord checks a full record ahead of Create dispatch: required
// fields must be present or carry a declared default (filled in place),
// and every present field must satisfy its declared constraints.
// Uniqueness is never checked here — it's a backend-detected
// odmerr.UniqueViolation surfaced by the adapter on insert.
func validateRecord(meta metadata.ModelMeta, record map[string]value.Value) error {
	for _, f := range meta.Fields {
		if f.Name == "id" {
			continue
		}
		v, present := record[f.Name]
		if !present || v.IsNull() {
			if f.Def.Default != nil {
				record[f.Name] = *f.Def.Default
				continue
			}
			if f.Def.Required {
				return odmerr.NewValidationError(f.Name, "field is required")
			}
			continue
		}
		if err := validateValue(f.Name, f.Def.Type, v); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(field string, ft metadata.FieldType, v value.Value) error {
	switch ft.Kind {
	case metadata.FieldString:
		s, ok := v.AsString()
		if !ok {
			return odmerr.NewValidationError(field, "expected a string value")
		}
		if ft.MinLen != nil && len(s) < *ft.MinLen {
			return odmerr.NewValidationError(field, "shorter than the declared minimum length")
		}
		if ft.MaxLen != nil && len(s) > *ft.MaxLen {
			return odmerr.NewValidationError(field, "longer than the declared maximum length")
		}
		if ft.Regex != "" {
			re, err := regexp.Compile(ft.Regex)
			if err != nil {
				return odmerr.NewValidationError(field, "declared regex constraint does not compile")
			}
			if !re.MatchString(s) {
				return odmerr.NewValidationError(field, "does not match the declared pattern")
			}
		}
	case metadata.FieldInteger:
		i, ok := v.AsInt64()
		if !ok {
			return odmerr.NewValidationError(field, "expected an integer value")
		}
		if ft.Min != nil && float64(i) < *ft.Min {
			return odmerr.NewValidationError(field, "below the declared minimum")
		}
		if ft.Max != nil && float64(i) > *ft.Max {
			return odmerr.NewValidationError(field, "above the declared maximum")
		}
	case metadata.FieldFloat:
		fl, ok := v.AsFloat64()
		if !ok {
			return odmerr.NewValidationError(field, "expected a float value")
		}
		if ft.Min != nil && fl < *ft.Min {
			return odmerr.NewValidationError(field, "below the declared minimum")
		}
		if ft.Max != nil && fl > *ft.Max {
			return odmerr.NewValidationError(field, "above the declared maximum")
		}
	case metadata.FieldArray:
		arr, ok := v.AsArray()
		if !ok {
			return odmerr.NewValidationError(field, "expected an array value")
		}
		if ft.ArrMin != nil && len(arr) < *ft.ArrMin {
			return odmerr.NewValidationError(field, "fewer elements than the declared minimum")
		}
		if ft.ArrMax != nil && len(arr) > *ft.ArrMax {
			return odmerr.NewValidationError(field, "more elements than the declared maximum")
		}
		if ft.Item != nil {
			for _, elem := range arr {
				if err := validateValue(field, *ft.Item, elem); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// validateUpdateOps checks bound constraints for Set operations ahead of
// an Update/UpdateByID dispatch. Increment/PercentIncrease/Unset carry no
// value to validate against the declared field type.
func validateUpdateOps(meta metadata.ModelMeta, ops []query.UpdateOperation) error {
	for _, op := range ops {
		if op.Kind != query.UpdateSet || op.Field == "id" || op.Value.IsNull() {
			continue
		}
		fd, ok := meta.Field(op.Field)
		if !ok {
			continue
		}
		if err := validateValue(op.Field, fd.Type, op.Value); err != nil {
			return err
		}
	}
	return nil
}
