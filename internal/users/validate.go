package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/user-service/internal/apperr"
)

// Input は作成・更新時にクライアントが送るフィールドです。
// name は 3〜50 文字、password は 4 文字以上です。
type Input struct {
	Name     string `json:"name" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=4"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Violations は違反した全てのルールをフィールド順に返します。skip に含まれるフィールドは対象外です。
func (in Input) Violations(skip ...string) []string {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	var messages []string
	for _, fe := range fieldErrs {
		if skipped[fe.Field()] {
			continue
		}
		messages = append(messages, violationMessage(fe))
	}
	return messages
}

func violationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min":
		return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	default:
		return fmt.Sprintf("%q failed %s validation", field, fe.Tag())
	}
}

// Validate は Input を検証し、違反があれば全件を含む検証エラーを返します。
func (in Input) Validate() error {
	if msgs := in.Violations(); len(msgs) > 0 {
		return apperr.Validation(msgs...)
	}
	return nil
}

var inputFields = []string{"name", "email", "password"}

// ParseInput は JSON オブジェクトの本文を Input に変換して検証します。
// 文字列でないフィールドは型エラーとして報告し、そのフィールドの他のルールは報告しません。
// name / email / password 以外のキーは許可しません。
func ParseInput(raw []byte) (Input, error) {
	var doc map[string]json.RawMessage
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Input{}, apperr.Validation(`"value" must be of type object`)
		}
	}

	var (
		in       Input
		typeErrs []string
		badField []string
	)
	values := map[string]*string{
		"name":     &in.Name,
		"email":    &in.Email,
		"password": &in.Password,
	}
	for _, field := range inputFields {
		rawValue, ok := doc[field]
		if !ok || string(rawValue) == "null" {
			continue
		}
		if err := json.Unmarshal(rawValue, values[field]); err != nil {
			typeErrs = append(typeErrs, fmt.Sprintf("%q must be a string", field))
			badField = append(badField, field)
		}
	}

	msgs := in.Violations(badField...)
	all := append(mergeInFieldOrder(typeErrs, msgs), unknownKeys(doc)...)
	if len(all) > 0 {
		return in, apperr.Validation(all...)
	}
	return in, nil
}

// mergeInFieldOrder はメッセージを name, email, password の順に並べます。
func mergeInFieldOrder(groups ...[]string) []string {
	var all []string
	for _, field := range inputFields {
		prefix := fmt.Sprintf("%q ", field)
		for _, group := range groups {
			for _, msg := range group {
				if strings.HasPrefix(msg, prefix) {
					all = append(all, msg)
				}
			}
		}
	}
	return all
}

// unknownKeys は許可されていないキーごとのメッセージをキー順に返します。
func unknownKeys(doc map[string]json.RawMessage) []string {
	var keys []string
	for key := range doc {
		if !slices.Contains(inputFields, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	msgs := make([]string, 0, len(keys))
	for _, key := range keys {
		msgs = append(msgs, fmt.Sprintf("%q is not allowed", key))
	}
	return msgs
}
