// Package admin bootstraps administrator accounts from the command line.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

type UserCreator interface {
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
}

// CreateAdmin prompts for email, name and a confirmed password and creates
// an admin user with them.
func CreateAdmin(ctx context.Context, reader *bufio.Reader, w io.Writer, users UserCreator) (*models.User, error) {
	email, err := GetSimpleText(reader, "Email", w)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrorValidation)
	}

	name, err := GetSimpleText(reader, "Name", w)
	if err != nil {
		return nil, err
	}

	pw, err := GetPassword(w, "Password")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword(w, "Repeat password")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return nil, ErrPasswordMismatch
	}

	user, err := users.Create(ctx, services.CreateUserInput{
		Email:    email,
		Password: string(pw),
		Name:     name,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "Created admin %s (%s)\n", user.Username, user.ID)
	return user, nil
}
