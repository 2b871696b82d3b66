package users

import "errors"

var (
	// ErrNotFound は該当するユーザーが存在しない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrUsernameTaken はユーザー名が既に使われている場合に返されます。
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUnknownField は更新できない列が指定された場合に返されます。
	ErrUnknownField = errors.New("unknown user field")
)
