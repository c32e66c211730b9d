package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval so repeated calls reuse the same secret.
type Source struct {
	envVar string
	prompt string

	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
	readSecret func() ([]byte, error)
	promptOut  io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal.
func NewSource(envVar, prompt string) *Source {
	if strings.TrimSpace(prompt) == "" {
		prompt = "Enter keystore passphrase: "
	}
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		prompt:     prompt,
		lookupEnv:  os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(fd) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(fd) },
		promptOut:  os.Stderr,
	}
}

// Get returns the cached passphrase or resolves it if this is the first call.
// Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
			} else {
				s.err = errors.New("keystore passphrase required and no terminal available")
			}
			return
		}

		fmt.Fprint(s.promptOut, s.prompt)
		bytes, err := s.readSecret()
		fmt.Fprintln(s.promptOut)
		if err != nil {
			s.err = fmt.Errorf("failed to read passphrase: %w", err)
			return
		}

		passphrase := string(bytes)
		if strings.TrimSpace(passphrase) == "" {
			s.err = errors.New("keystore passphrase cannot be empty")
			return
		}

		s.value = passphrase
	})

	return s.value, s.err
}
