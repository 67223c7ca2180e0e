package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

// Validator checks documents against the collection schemas before any
// write is accepted. Unknown fields pass through untouched; only the
// fields a schema declares are checked.
type Validator struct {
	reg *schema.Registry
}

// New returns a Validator bound to the given registry.
func New(reg *schema.Registry) *Validator {
	return &Validator{reg: reg}
}

// Document validates a single document destined for the named collection.
func (v *Validator) Document(collection string, doc model.Document) error {
	col, err := v.reg.Get(collection)
	if err != nil {
		return err
	}
	var errs []string
	if id, present := doc[model.FieldID]; present {
		s, ok := id.(string)
		if !ok {
			errs = append(errs, "_id must be a string")
		} else if strings.TrimSpace(s) == "" {
			errs = append(errs, "_id must not be empty")
		}
	}
	for _, f := range []string{model.FieldCreatedAt, model.FieldUpdatedAt, model.FieldExpiresAt} {
		if raw, present := doc[f]; present {
			if err := checkTimestamp(raw); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", f, err))
			}
		}
	}
	for _, field := range col.Fields {
		raw, present := doc[field.Name]
		if !present || raw == nil {
			continue
		}
		switch field.Kind {
		case schema.KindPointer:
			if err := v.checkPointer(field, raw); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", field.Name, err))
			}
		case schema.KindIdentifier:
			if _, ok := raw.(string); !ok {
				errs = append(errs, fmt.Sprintf("%s: identifier must be a string", field.Name))
			}
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (v *Validator) checkPointer(field schema.Field, raw any) error {
	s, ok := raw.(string)
	if !ok {
		return errors.New("pointer must be a string")
	}
	ptr, err := schema.DecodePointer(s)
	if err != nil {
		return err
	}
	if field.Target != "" && ptr.Collection != field.Target {
		return fmt.Errorf("pointer targets %q, schema expects %q", ptr.Collection, field.Target)
	}
	if !v.reg.Has(ptr.Collection) {
		return fmt.Errorf("%w: %s", schema.ErrUnknownCollection, ptr.Collection)
	}
	return nil
}

func checkTimestamp(raw any) error {
	switch t := raw.(type) {
	case string:
		if _, err := model.ParseTime(t); err != nil {
			return fmt.Errorf("invalid timestamp: %v", err)
		}
		return nil
	case time.Time:
		return nil
	default:
		return fmt.Errorf("invalid timestamp type %T", raw)
	}
}
