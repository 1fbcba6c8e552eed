package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) replaceToken(token string) error {
	sess, verified, err := cli.sessions.ReplaceAndVerify(context.Background(), token, cli.courses)
	if sess.Token == "" {
		return err
	}
	fmt.Fprintf(cli.out, "token: %s\n", sess.MaskedToken())
	if verified {
		fmt.Fprintln(cli.out, "token verified")
	} else {
		fmt.Fprintln(cli.out, "token saved but not verified")
	}
	return err
}
