package secrets

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmptySecret   = errors.New("secret is empty")
	ErrSecretTooLong = errors.New("secret is too long")
	ErrNotText       = errors.New("secret is not plain text")
)

// Validate は投稿内容を正規化して検証します。
// 前後の空白を除き、改行とタブ以外の制御文字を含まない UTF-8 テキストだけを受け付けます。
func Validate(raw string, maxLength int) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptySecret
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrNotText)
	}
	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		return "", fmt.Errorf("%w: limit is %d characters", ErrSecretTooLong, maxLength)
	}
	for _, r := range text {
		switch r {
		case '\n', '\r', '\t':
			continue
		}
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character %U", ErrNotText, r)
		}
	}
	return text, nil
}
