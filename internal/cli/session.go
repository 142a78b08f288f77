package cli

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

// Execute implements the go-flags Commander interface for LoginCommand.
func (c *LoginCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *LoginCommand) run(ctx context.Context, s *session) error {
	if c.Email == "" {
		return apperr.New(apperr.KindInvalid, "--email is required")
	}
	password := c.Password
	if password == "" {
		var err error
		password, err = promptLine("Password: ")
		if err != nil {
			return apperr.Wrap(apperr.KindInvalid, "read password", err)
		}
	}
	sess, err := s.api.Login(ctx, c.Email, password)
	if err != nil {
		return err
	}
	if c.globals.JSON {
		return printJSON(sess)
	}
	fmt.Printf("Signed in as %s\n", sess.Email)
	if sess.ExpiresAt != nil {
		fmt.Printf("Session until %s\n", formatTime(*sess.ExpiresAt))
	}
	return nil
}

// Execute implements the go-flags Commander interface for LogoutCommand.
func (c *LogoutCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *LogoutCommand) run(ctx context.Context, s *session) error {
	if err := s.api.Logout(ctx); err != nil {
		return err
	}
	if !c.globals.JSON {
		fmt.Println("Signed out.")
	}
	return nil
}
