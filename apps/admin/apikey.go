package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyBytes = 24

var randReadFunc = rand.Read // mockable

// newAPIKey generates a control API key and stores its hash. The key is printed once.
func (cli *commandLine) newAPIKey() error {
	buf := make([]byte, apiKeyBytes)
	if _, err := randReadFunc(buf); err != nil {
		return errors.Wrap(err, "generating api key")
	}
	key := hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing api key")
	}
	if err = cli.config.SetAPIKeyHash(string(hash)); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "api key: %s\n", key)
	fmt.Fprintln(cli.out, "it is not stored, keep it now; restart the agent to apply it")
	return nil
}
