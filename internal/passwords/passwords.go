// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package passwords implements the password validators selected by the
// configuration profile.
package passwords

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/validate"
	"golang.org/x/text/cases"
)

var (
	ErrTooSimilar       = errors.New("password is too similar to a user attribute")
	ErrTooShort         = errors.New("password is too short")
	ErrTooCommon        = errors.New("password is too common")
	ErrEntirelyNumeric  = errors.New("password is entirely numeric")
	ErrUnknownValidator = errors.New("unknown password validator")
)

const (
	DefaultMinLength     = 8
	DefaultMaxSimilarity = 0.7
)

// DefaultUserAttributes are compared by the similarity validator when the
// configuration names none.
var DefaultUserAttributes = []string{"username", "first_name", "last_name", "email"}

// User carries the attributes a password must not resemble, keyed by name
// (e.g. "username", "email").
type User map[string]string

// Validator checks one password rule.
type Validator interface {
	Name() string
	Validate(password string, user User) error
	Help() string
}

// Policy runs a list of validators and reports every failure.
type Policy struct {
	validators []Validator
}

// NewPolicy builds the validators named in cfgs, in order. An empty list
// yields a policy that accepts every password.
func NewPolicy(cfgs []config.PasswordValidatorConfig) (*Policy, error) {
	p := &Policy{validators: make([]Validator, 0, len(cfgs))}
	for _, c := range cfgs {
		v, err := newValidator(c)
		if err != nil {
			return nil, err
		}
		p.validators = append(p.validators, v)
	}
	return p, nil
}

func newValidator(c config.PasswordValidatorConfig) (Validator, error) {
	switch c.Name {
	case config.PasswordUserAttributeSimilarity:
		attrs := c.UserAttributes
		if len(attrs) == 0 {
			attrs = DefaultUserAttributes
		}
		maxSim := c.MaxSimilarity
		if maxSim == 0 {
			maxSim = DefaultMaxSimilarity
		}
		return &SimilarityValidator{Attributes: attrs, MaxSimilarity: maxSim}, nil
	case config.PasswordMinimumLength:
		minLen := c.MinLength
		if minLen == 0 {
			minLen = DefaultMinLength
		}
		return &MinimumLengthValidator{MinLength: minLen}, nil
	case config.PasswordCommon:
		return &CommonPasswordValidator{}, nil
	case config.PasswordNumeric:
		return &NumericPasswordValidator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownValidator, c.Name)
	}
}

// Validate returns nil when password passes every validator; otherwise a
// validate.ValidationError with one entry per failing validator.
func (p *Policy) Validate(password string, user User) error {
	v := validate.New()
	for _, val := range p.validators {
		if err := val.Validate(password, user); err != nil {
			v.AddCause(val.Name(), err, nil)
		}
	}
	return v.Err()
}

// Names returns the validator names in evaluation order.
func (p *Policy) Names() []string {
	out := make([]string, len(p.validators))
	for i, v := range p.validators {
		out[i] = v.Name()
	}
	return out
}

// HelpTexts describes the active rules for display next to a password form.
func (p *Policy) HelpTexts() []string {
	out := make([]string, len(p.validators))
	for i, v := range p.validators {
		out[i] = v.Help()
	}
	return out
}

var (
	folder       = cases.Fold()
	foldMu       sync.Mutex
	nonWordSplit = regexp.MustCompile(`\W+`)
)

func fold(s string) string {
	// cases.Caser is stateful and not safe for concurrent use.
	foldMu.Lock()
	defer foldMu.Unlock()
	return folder.String(s)
}

// SimilarityValidator rejects passwords that resemble a user attribute or
// any word-separated part of it.
type SimilarityValidator struct {
	Attributes    []string
	MaxSimilarity float64
}

func (v *SimilarityValidator) Name() string { return config.PasswordUserAttributeSimilarity }

func (v *SimilarityValidator) Help() string {
	return "Your password can't be too similar to your other personal information."
}

func (v *SimilarityValidator) Validate(password string, user User) error {
	if password == "" {
		return nil
	}
	pw := fold(password)
	for _, attr := range v.Attributes {
		value := user[attr]
		if value == "" {
			continue
		}
		folded := fold(value)
		parts := append(nonWordSplit.Split(folded, -1), folded)
		for _, part := range parts {
			if part == "" {
				continue
			}
			if quickRatio(pw, part) >= v.MaxSimilarity {
				return fmt.Errorf("%w: %s", ErrTooSimilar, strings.ReplaceAll(attr, "_", " "))
			}
		}
	}
	return nil
}

// quickRatio is an upper bound on the matching-blocks ratio of a and b:
// 2*|common runes| / (|a|+|b|), counting runes as multisets.
func quickRatio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int)
	for _, r := range b {
		avail[r]++
	}
	matches := 0
	for _, r := range a {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

// MinimumLengthValidator rejects passwords shorter than MinLength characters.
type MinimumLengthValidator struct {
	MinLength int
}

func (v *MinimumLengthValidator) Name() string { return config.PasswordMinimumLength }

func (v *MinimumLengthValidator) Help() string {
	return fmt.Sprintf("Your password must contain at least %d characters.", v.MinLength)
}

func (v *MinimumLengthValidator) Validate(password string, _ User) error {
	if n := utf8.RuneCountInString(password); n < v.MinLength {
		return fmt.Errorf("%w: it must contain at least %d characters", ErrTooShort, v.MinLength)
	}
	return nil
}

//go:embed common-passwords.txt
var commonPasswordsRaw string

var (
	commonOnce sync.Once
	common     map[string]struct{}
)

func commonPasswords() map[string]struct{} {
	commonOnce.Do(func() {
		common = make(map[string]struct{})
		sc := bufio.NewScanner(strings.NewReader(commonPasswordsRaw))
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				common[strings.ToLower(line)] = struct{}{}
			}
		}
	})
	return common
}

// CommonPasswordValidator rejects passwords found in the embedded list.
type CommonPasswordValidator struct{}

func (v *CommonPasswordValidator) Name() string { return config.PasswordCommon }

func (v *CommonPasswordValidator) Help() string {
	return "Your password can't be a commonly used password."
}

func (v *CommonPasswordValidator) Validate(password string, _ User) error {
	if _, ok := commonPasswords()[strings.ToLower(strings.TrimSpace(password))]; ok {
		return ErrTooCommon
	}
	return nil
}

// NumericPasswordValidator rejects passwords made only of digits.
type NumericPasswordValidator struct{}

func (v *NumericPasswordValidator) Name() string { return config.PasswordNumeric }

func (v *NumericPasswordValidator) Help() string {
	return "Your password can't be entirely numeric."
}

func (v *NumericPasswordValidator) Validate(password string, _ User) error {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return ErrEntirelyNumeric
}
