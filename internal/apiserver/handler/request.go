package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", notBlank)
	}
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// param is a request parameter. JSON numbers and booleans are accepted as
// their text.
type param string

func (p *param) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = param(s)
		return nil
	}
	switch {
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
	case json.Valid(data) && len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
	default:
		return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf(*p)}
	}
	*p = param(data)
	return nil
}

func (p *param) str() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(string(*p))
}

type convertTokenRequest struct {
	GrantType    *param `json:"grant_type" form:"grant_type" binding:"required,notblank,max=50"`
	Backend      *param `json:"backend" form:"backend" binding:"required,notblank,max=200"`
	ClientID     *param `json:"client_id" form:"client_id" binding:"required,notblank,max=200"`
	Token        *param `json:"token" form:"token" binding:"required,notblank,max=5000"`
	ClientSecret *param `json:"client_secret" form:"client_secret"`
	Scope        *param `json:"scope" form:"scope"`
}

type tokenRequest struct {
	GrantType    *param `json:"grant_type" form:"grant_type"`
	ClientID     *param `json:"client_id" form:"client_id"`
	ClientSecret *param `json:"client_secret" form:"client_secret"`
	RefreshToken *param `json:"refresh_token" form:"refresh_token"`
	Scope        *param `json:"scope" form:"scope"`
}

type clientRequest struct {
	ClientID     *param `json:"client_id" form:"client_id" binding:"required,notblank,max=200"`
	ClientSecret *param `json:"client_secret" form:"client_secret"`
}

type disconnectRequest struct {
	Backend       *param `json:"backend" form:"backend" binding:"required,notblank,max=200"`
	AssociationID *param `json:"association_id" form:"association_id" binding:"required,number"`
}

// validationErrors maps a field to its messages
type validationErrors map[string][]string

func (e validationErrors) add(name, msg string) {
	e[name] = append(e[name], msg)
}

// bindRequest decodes the body into req according to its content type. An
// empty JSON body is validated as an empty object.
func bindRequest(c *gin.Context, req any) (validationErrors, error) {
	err := c.ShouldBind(req)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(req)
	}
	if err == nil {
		return nil, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	t := reflect.TypeOf(req).Elem()
	errs := make(validationErrors)
	for _, fe := range fieldErrs {
		name := fe.Field()
		if sf, ok := t.FieldByName(fe.StructField()); ok {
			name = sf.Tag.Get("form")
		}
		errs.add(name, fieldMessage(name, fe))
	}
	return errs, nil
}

func fieldMessage(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", name)
	case "notblank":
		return fmt.Sprintf("%s cannot be blank.", name)
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "number":
		return fmt.Sprintf("%s must be a valid integer.", name)
	default:
		return fmt.Sprintf("%s is invalid.", name)
	}
}
