package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Границы длины полей пользовательских форм.
const (
	NameMinLen         = 2
	NameMaxLen         = 50
	PhoneMinDigits     = 7
	PhoneMaxDigits     = 15
	AddressLineMinLen  = 5
	AddressLineMaxLen  = 100
	CityMinLen         = 2
	CityMaxLen         = 50
	PostalCodeMinLen   = 3
	PostalCodeMaxLen   = 10
	InstructionsMaxLen = 200
	NoteMaxLen         = 200
	PasswordMinLen     = 8
	PasswordMaxLen     = 72 // ограничение bcrypt
	EmailMinLen        = 3
	EmailMaxLen        = 254
	AddressLabelMaxLen = 30
)

// FieldError описывает ошибку одного поля формы.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors собирает все ошибки формы, чтобы показать их разом.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap позволяет проверять ошибки через errors.Is(err, ErrValidation).
func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Fields возвращает ошибки в виде map поле -> сообщение.
func (v ValidationErrors) Fields() map[string]string {
	result := make(map[string]string, len(v))
	for _, fe := range v {
		if _, exists := result[fe.Field]; !exists {
			result[fe.Field] = fe.Message
		}
	}
	return result
}

// Err возвращает nil для пустого набора ошибок.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Validator накапливает ошибки проверок.
type Validator struct {
	errs ValidationErrors
}

// Add добавляет ошибку поля.
func (v *Validator) Add(field, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Length проверяет длину строки в рунах после обрезки пробелов.
func (v *Validator) Length(field, value string, minLen, maxLen int) {
	if err := CheckLength(field, value, minLen, maxLen); err != nil {
		v.errs = append(v.errs, *err)
	}
}

// Optional проверяет длину, только если значение не пустое.
func (v *Validator) Optional(field, value string, maxLen int) {
	if strings.TrimSpace(value) == "" {
		return
	}
	v.Length(field, value, 0, maxLen)
}

// Merge добавляет ошибки другой проверки с префиксом поля.
func (v *Validator) Merge(prefix string, err error) {
	if err == nil {
		return
	}
	errs, ok := err.(ValidationErrors)
	if !ok {
		v.Add(prefix, "%s", err.Error())
		return
	}
	for _, fe := range errs {
		field := fe.Field
		if prefix != "" {
			field = prefix + "." + field
		}
		v.errs = append(v.errs, FieldError{Field: field, Message: fe.Message})
	}
}

// Err возвращает накопленные ошибки или nil.
func (v *Validator) Err() error {
	return v.errs.Err()
}

// CheckLength — проверка диапазона длины строки.
func CheckLength(field, value string, minLen, maxLen int) *FieldError {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0 && minLen > 0:
		return &FieldError{Field: field, Message: "is required"}
	case n < minLen:
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at least %d characters", minLen)}
	case maxLen > 0 && n > maxLen:
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxLen)}
	default:
		return nil
	}
}

// ValidateName проверяет имя клиента.
func ValidateName(v *Validator, field, name string) {
	v.Length(field, name, NameMinLen, NameMaxLen)
}

// ValidatePhone допускает ведущий "+", пробелы, дефисы и скобки; считает только цифры.
func ValidatePhone(v *Validator, field, phone string) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		v.Add(field, "is required")
		return
	}
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			v.Add(field, "contains invalid character %q", r)
			return
		}
	}
	if digits < PhoneMinDigits || digits > PhoneMaxDigits {
		v.Add(field, "must contain %d to %d digits", PhoneMinDigits, PhoneMaxDigits)
	}
}

// ValidateEmail выполняет упрощённую проверку формата local@domain.
func ValidateEmail(v *Validator, field, email string) {
	email = strings.TrimSpace(email)
	if fe := CheckLength(field, email, EmailMinLen, EmailMaxLen); fe != nil {
		v.errs = append(v.errs, *fe)
		return
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		v.Add(field, "must be a valid email address")
		return
	}
	if !strings.Contains(email[at+1:], ".") {
		v.Add(field, "must be a valid email address")
	}
}

// ValidatePassword проверяет длину пароля в байтах (bcrypt учитывает только первые 72).
func ValidatePassword(v *Validator, field, password string) {
	switch n := len(password); {
	case n < PasswordMinLen:
		v.Add(field, "must be at least %d characters", PasswordMinLen)
	case n > PasswordMaxLen:
		v.Add(field, "must be at most %d bytes", PasswordMaxLen)
	}
}

// ValidateNote проверяет необязательный комментарий к позиции или заказу.
func ValidateNote(v *Validator, field, note string) {
	v.Optional(field, note, NoteMaxLen)
}

// NormalizeEmail приводит email к виду для уникального индекса.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
