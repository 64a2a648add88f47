package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Validator предоставляет общие функции валидации
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRequiredFields проверяет обязательные поля запроса.
// requiredFields сопоставляет ключ поля с его читаемым именем.
func (v *Validator) ValidateRequiredFields(req map[string]string, requiredFields map[string]string) error {
	for field, fieldName := range requiredFields {
		if value, exists := req[field]; !exists || strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}
	return nil
}

// ValidateURL проверяет корректность абсолютного URL
func (v *Validator) ValidateURL(target string, allowedSchemes []string) error {
	if target == "" {
		return fmt.Errorf("target is required")
	}

	if strings.ContainsAny(target, " \t\n\r") {
		return fmt.Errorf("URL contains invalid whitespace characters")
	}

	parsedURL, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if len(allowedSchemes) > 0 {
		schemeValid := false
		for _, scheme := range allowedSchemes {
			if parsedURL.Scheme == scheme {
				schemeValid = true
				break
			}
		}
		if !schemeValid {
			return fmt.Errorf("URL must use one of allowed schemes %v, got: %s", allowedSchemes, parsedURL.Scheme)
		}
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a valid host")
	}

	return nil
}

// ValidateLocalPath проверяет, что значение является путем внутри сайта.
// Используется для параметра callbackUrl, чтобы исключить open redirect.
func (v *Validator) ValidateLocalPath(path string) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("path must start with /")
	}
	if strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\") {
		return fmt.Errorf("path must not be protocol-relative")
	}
	if strings.ContainsAny(path, "\r\n") {
		return fmt.Errorf("path contains control characters")
	}
	parsed, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return fmt.Errorf("path must not contain scheme or host")
	}
	return nil
}

// ValidateEnum проверяет значение на соответствие enum
func (v *Validator) ValidateEnum(value string, allowedValues []string, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}

	return fmt.Errorf("invalid %s: %s, allowed values: %v", fieldName, value, allowedValues)
}

// ValidateStringLength проверяет длину строки в символах
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters, got: %d", fieldName, min, length)
	}
	if length > max {
		return fmt.Errorf("%s must not exceed %d characters, got: %d", fieldName, max, length)
	}
	return nil
}

// ValidateIdentifier проверяет идентификатор, который попадает в ключ хранилища:
// непустой, ограниченной длины, без пробелов, двоеточий и glob символов.
func (v *Validator) ValidateIdentifier(value, fieldName string) error {
	if err := v.ValidateStringLength(value, fieldName, 1, 128); err != nil {
		return err
	}
	if strings.ContainsAny(value, " \t\r\n:*?[]") {
		return fmt.Errorf("%s contains forbidden characters", fieldName)
	}
	return nil
}
