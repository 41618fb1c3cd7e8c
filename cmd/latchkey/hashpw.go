// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/latchkey/latchkey/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand, used to seed
// users directly into the database.
func NewHashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long: `Read one password line from stdin and print its argon2id hash using the
configured hasher parameters. The password is never accepted as an argument
so that it does not end up in shell history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hasher.Params())
			if err != nil {
				return err
			}
			return runHashPassword(cmd, cmd.InOrStdin(), hasher)
		},
	}
	return cmd
}

func runHashPassword(cmd *cobra.Command, in io.Reader, hasher auth.PasswordHasher) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return oops.Code("HASH_PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	cmd.Println(hash)
	return nil
}
