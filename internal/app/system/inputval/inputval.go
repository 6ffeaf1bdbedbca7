// Package inputval checks decoded API request bodies against their validate
// tags and turns failures into per-field messages for jsonutil.ValidationError.
//
//	type createInput struct {
//	    Title    string `json:"title" validate:"required,max=200" label:"Title"`
//	    Category string `json:"category" validate:"required,category" label:"Category"`
//	}
//
//	if res := inputval.Validate(in); res.HasErrors() {
//	    jsonutil.ValidationError(w, res.Fields())
//	    return
//	}
package inputval

import (
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldError is one rejected field. Field is the JSON name.
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// Result collects the failures of one Validate call.
type Result struct {
	Errors []FieldError
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// Fields maps each failing field to its first message.
func (r *Result) Fields() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		if _, seen := out[e.Field]; !seen {
			out[e.Field] = e.Message
		}
	}
	return out
}

// rule is a string check registered with the validator under name. Optional
// rules pass on blank input so they can be combined with required.
type rule struct {
	name     string
	optional bool
	check    func(string) bool
	message  func(label string) string
}

var rules = []rule{
	{
		name:    "category",
		check:   models.IsValidCategory,
		message: func(l string) string { return l + " must be one of: " + strings.Join(models.AllCategories(), ", ") + "." },
	},
	{
		name:     "httpurl",
		optional: true,
		check:    IsValidHTTPURL,
		message:  func(l string) string { return l + " must be a valid URL starting with http:// or https://." },
	},
	{
		name:     "youtubeurl",
		optional: true,
		check:    IsValidYouTubeURL,
		message:  func(l string) string { return l + " must be a YouTube link." },
	},
	{
		name:    "objectid",
		check:   IsValidObjectID,
		message: func(l string) string { return l + " is not a valid ID." },
	},
}

var (
	validator     *validate.Validator
	validatorOnce sync.Once
)

func getValidator() *validate.Validator {
	validatorOnce.Do(func() {
		validator = validate.New(validate.WithStopOnFirstError())
		for _, r := range rules {
			r := r
			validator.RegisterRuleFunc(r.name, func(value any) bool {
				s, ok := value.(string)
				if !ok {
					return false
				}
				if r.optional && strings.TrimSpace(s) == "" {
					return true
				}
				return r.check(s)
			}, r.name)
		}
	})
	return validator
}

// Validate runs the validate tags of s, a struct or pointer to one. Besides
// the pantry/validate rules (required, email, oneof, min, max) it knows
// category, httpurl, youtubeurl and objectid. Messages use the field's
// label tag, falling back to its JSON name.
func Validate(s any) *Result {
	res := &Result{}
	err := getValidator().Struct(s)
	if err == nil {
		return res
	}

	errs, ok := err.(validate.Errors)
	if !ok {
		return res
	}
	labels := labelsOf(s)
	for _, e := range errs {
		label := labels[e.Field]
		if label == "" {
			label = e.Field
		}
		res.Errors = append(res.Errors, FieldError{
			Field:   e.Field,
			Label:   label,
			Message: message(label, e.Rule, e.Param),
		})
	}
	return res
}

// labelsOf maps JSON field names to their label tags.
func labelsOf(s any) map[string]string {
	labels := map[string]string{}
	v := reflect.Indirect(reflect.ValueOf(s))
	if v.Kind() != reflect.Struct {
		return labels
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		label := f.Tag.Get("label")
		if label == "" {
			continue
		}
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}
		labels[name] = label
	}
	return labels
}

func message(label, ruleName, param string) string {
	for _, r := range rules {
		if r.name == ruleName {
			return r.message(label)
		}
	}
	switch ruleName {
	case "required":
		return label + " is required."
	case "email":
		return "A valid email address is required."
	case "oneof", "enum":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	default:
		return label + " is invalid."
	}
}

// IsValidEmail reports whether s is a bare RFC 5322 address (no display name).
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

var youtubeRe = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+$`)

// IsValidYouTubeURL reports whether s links to youtube.com or youtu.be.
func IsValidYouTubeURL(s string) bool {
	return youtubeRe.MatchString(strings.TrimSpace(s))
}

// IsValidHTTPURL reports whether s parses as an http or https URL.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// IsValidObjectID reports whether s is an ObjectID hex string.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	return err == nil
}
