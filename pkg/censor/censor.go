// Package censor provides lexical content filtering.
//
// Test data in test_data/ contains placeholder vocabulary only; real deployments load their own
// word list through LoadFromJSON.
package censor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// Checker reports whether text contains banned vocabulary.
type Checker interface {
	Check(ctx context.Context, text string) (bool, error)
}

type Word struct {
	Text       string   `json:"text"`
	Pattern    string   `json:"pattern"`
	Exceptions []string `json:"exceptions"`

	regexPattern *regexp.Regexp
}

type Censor struct {
	bannedWords []Word
}

// New returns an empty Censor instance.
func New() *Censor {
	return &Censor{}
}

// LoadFromJSON loads banned words from a JSON file and compiles regexes.
func (c *Censor) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var words []Word
	if err := json.Unmarshal(data, &words); err != nil {
		return err
	}

	return c.SetWords(words)
}

// SetWords compiles and installs the given word list.
func (c *Censor) SetWords(words []Word) error {
	for i, word := range words {
		re, err := regexp.Compile(word.Pattern)
		if err != nil {
			return fmt.Errorf("failed to compile pattern %q: %w", word.Pattern, err)
		}
		words[i].regexPattern = re
	}

	c.bannedWords = words
	return nil
}

var lookalikes = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
)

func normalize(text string) string {
	text = strings.ToLower(text)
	text = lookalikes.Replace(text)
	return strings.TrimSpace(text)
}

// Match scans text for banned vocabulary using case-insensitive matching with digit and symbol
// lookalikes folded to letters. A word matches when some pattern finds it and the matched fragment
// is not listed among that pattern's exceptions.
func (c *Censor) Match(text string) bool {
	words := strings.FieldsFunc(normalize(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})

	for _, w := range words {
		for _, banned := range c.bannedWords {
			match := banned.regexPattern.FindString(w)
			if match == "" {
				continue
			}

			isException := false
			for _, exc := range banned.Exceptions {
				if exc == match || exc == w {
					isException = true
					break
				}
			}

			if !isException {
				return true
			}
		}
	}

	return false
}

// Check implements Checker.
func (c *Censor) Check(ctx context.Context, text string) (bool, error) {
	return c.Match(text), nil
}
