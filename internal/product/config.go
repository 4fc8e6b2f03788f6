// Package product loads the per-product installer configuration files.
package product

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Product     Info              `json:"product"`
	Marketplace Marketplace       `json:"marketplace"`
	Repository  Repository        `json:"repository"`
	Deployment  Deployment        `json:"deployment"`
	Validation  *ValidationTarget `json:"validation,omitempty"`
}

type Info struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty" validate:"omitempty,url"`
	Version     string `json:"version,omitempty"`
}

type Marketplace struct {
	Platform       string `json:"platform" validate:"required,oneof=codecanyon gumroad lemon-squeezy"`
	ItemID         string `json:"itemId" validate:"required,excludes=:"`
	AuthorUsername string `json:"authorUsername,omitempty"`
}

type Repository struct {
	Provider  string `json:"provider" validate:"required,oneof=github"`
	Owner     string `json:"owner" validate:"required"`
	Repo      string `json:"repo" validate:"required"`
	Branch    string `json:"branch"`
	IsPrivate *bool  `json:"isPrivate,omitempty"`
}

type Deployment struct {
	Platform        string       `json:"platform" validate:"required,oneof=vercel"`
	Framework       string       `json:"framework"`
	BuildCommand    string       `json:"buildCommand,omitempty"`
	OutputDirectory string       `json:"outputDirectory,omitempty"`
	InstallCommand  string       `json:"installCommand,omitempty"`
	RequiredEnvVars []EnvVarSpec `json:"requiredEnvVars" validate:"dive"`
}

type EnvVarSpec struct {
	Key         string          `json:"key" validate:"required"`
	Value       string          `json:"value,omitempty"`
	UserInput   bool            `json:"userInput"`
	Required    bool            `json:"required"`
	Description string          `json:"description,omitempty"`
	Validation  *ValueValidator `json:"validation,omitempty"`
}

type ValueValidator struct {
	Type      string `json:"type" validate:"required,oneof=regex length url email"`
	Pattern   string `json:"pattern,omitempty" validate:"required_if=Type regex"`
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
}

type ValidationTarget struct {
	Endpoint string `json:"endpoint,omitempty" validate:"omitempty,url"`
	Method   string `json:"method" validate:"omitempty,oneof=GET POST PUT"`
}

// applyDefaults fills the fields the schema gives defaults for.
func (c *Config) applyDefaults() {
	if c.Repository.Branch == "" {
		c.Repository.Branch = "main"
	}
	if c.Repository.IsPrivate == nil {
		private := true
		c.Repository.IsPrivate = &private
	}
	if c.Deployment.Framework == "" {
		c.Deployment.Framework = "nextjs"
	}
	if c.Validation != nil && c.Validation.Method == "" {
		c.Validation.Method = "POST"
	}
}

// ValidateValue checks a user supplied value against the variable's rule.
func (s EnvVarSpec) ValidateValue(v *validator.Validate, value string) error {
	if s.Validation == nil {
		return nil
	}
	rule := s.Validation

	switch rule.Type {
	case "regex":
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("%s: invalid pattern: %w", s.Key, err)
		}
		if !re.MatchString(value) {
			return fmt.Errorf("%s: does not match %s", s.Key, rule.Pattern)
		}
	case "length":
		n := len([]rune(value))
		if rule.MinLength != nil && n < *rule.MinLength {
			return fmt.Errorf("%s: must be at least %d characters", s.Key, *rule.MinLength)
		}
		if rule.MaxLength != nil && n > *rule.MaxLength {
			return fmt.Errorf("%s: must be at most %d characters", s.Key, *rule.MaxLength)
		}
	case "url", "email":
		if err := v.Var(value, rule.Type); err != nil {
			return fmt.Errorf("%s: must be a valid %s", s.Key, rule.Type)
		}
	}
	return nil
}

// ProjectName derives the platform project name: product id plus the last
// six characters of the purchase code, lower-cased.
func ProjectName(productID, purchaseCode string) string {
	suffix := purchaseCode
	if r := []rune(purchaseCode); len(r) > 6 {
		suffix = string(r[len(r)-6:])
	}
	return productID + "-" + strings.ToLower(suffix)
}
