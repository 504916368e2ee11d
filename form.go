package livecmp

import (
	"strings"
)

// formBinder is implemented by Form via embedding; the engine binds every
// form-valued property to its owning component after mount and hydrate.
type formBinder interface {
	bindForm(self any, owner Component, property string)
}

// Form is the embeddable base for form objects: structs that group related
// properties with their own validation rules, dehydrated as a unit and
// addressed on the wire as nested paths under the owning property.
//
//	type PostForm struct {
//	    livecmp.Form
//	    Title string `json:"title"`
//	    Body  string `json:"body"`
//	}
//
// Register the class with Engine.RegisterForm and hold a pointer to it in a
// component property.
type Form struct {
	self     any
	owner    Component
	property string
}

func (f *Form) bindForm(self any, owner Component, property string) {
	f.self = self
	f.owner = owner
	f.property = property
}

// Component returns the component this form is bound to.
func (f *Form) Component() Component {
	return f.owner
}

// Validate runs the form's Rules against its own fields. Error bag keys are
// prefixed with the owning property, matching the wire paths the client
// binds inputs to ("form.title", not "title").
func (f *Form) Validate() error {
	if f.self == nil || f.owner == nil {
		return nil
	}
	rp, ok := f.self.(RulesProvider)
	if !ok {
		return nil
	}
	return validateFields(f.owner.liveBase().requestContext(), f.self, rp.Rules(), f.property+".")
}

// AddError records a manual validation message against a form field.
func (f *Form) AddError(field, message string) {
	if f.owner == nil {
		return
	}
	f.owner.liveBase().AddError(f.property+"."+field, message)
}

// Errors returns the messages recorded against a form field.
func (f *Form) Errors(field string) []string {
	if f.owner == nil {
		return nil
	}
	bag := errorBag(f.owner.liveBase().requestContext())
	return bag[f.property+"."+field]
}

// ResetErrors clears messages for the given form fields, or every field of
// this form when called with none.
func (f *Form) ResetErrors(fields ...string) {
	if f.owner == nil {
		return
	}
	base := f.owner.liveBase()
	if len(fields) > 0 {
		prefixed := make([]string, len(fields))
		for i, field := range fields {
			prefixed[i] = f.property + "." + field
		}
		base.ResetErrors(prefixed...)
		return
	}

	cctx := base.requestContext()
	bag := errorBag(cctx)
	var own []string
	for field := range bag {
		if strings.HasPrefix(field, f.property+".") {
			own = append(own, field)
		}
	}
	clearErrorFields(cctx, own...)
}
