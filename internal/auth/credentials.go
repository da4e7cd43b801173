package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrMissingCredentials = errors.New("username and password are required")

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// Prompter asks the operator for a value. Implementations decide how
// secrets are echoed.
type Prompter interface {
	Prompt(label string, secret bool) (string, error)
}

// Source resolves credentials field by field: explicit value, then the
// environment, then the prompter when one is configured.
type Source struct {
	UsernameEnv string
	PasswordEnv string
	Prompter    Prompter
	Getenv      func(string) string
}

func NewSource(usernameEnv, passwordEnv string, prompter Prompter) *Source {
	return &Source{
		UsernameEnv: usernameEnv,
		PasswordEnv: passwordEnv,
		Prompter:    prompter,
		Getenv:      os.Getenv,
	}
}

func (s *Source) Resolve(explicit Credentials) (Credentials, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	out := Credentials{
		Username: strings.TrimSpace(explicit.Username),
		Password: explicit.Password,
	}
	if out.Username == "" && s.UsernameEnv != "" {
		out.Username = strings.TrimSpace(getenv(s.UsernameEnv))
	}
	if out.Password == "" && s.PasswordEnv != "" {
		out.Password = getenv(s.PasswordEnv)
	}

	if s.Prompter != nil {
		if out.Username == "" {
			v, err := s.Prompter.Prompt("ID", false)
			if err != nil {
				return Credentials{}, fmt.Errorf("prompt username: %w", err)
			}
			out.Username = strings.TrimSpace(v)
		}
		if out.Password == "" {
			v, err := s.Prompter.Prompt("Password", true)
			if err != nil {
				return Credentials{}, fmt.Errorf("prompt password: %w", err)
			}
			out.Password = v
		}
	}

	if !out.Complete() {
		return Credentials{}, ErrMissingCredentials
	}
	return out, nil
}
