package cloudlibrary

import "strings"

// Credentials carries exactly one authentication mode: a username
// (library card barcode) with password (PIN), or an existing session token.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// UsesToken reports whether the token mode is selected. Any non-empty
// Token selects it, including one that is only whitespace.
func (c Credentials) UsesToken() bool {
	return c.Token != ""
}

// Validate checks that exactly one mode is fully supplied.
func (c Credentials) Validate() error {
	hasToken := c.UsesToken()
	hasLogin := c.Username != "" || c.Password != ""

	switch {
	case hasToken && hasLogin:
		return &ConfigurationError{Reason: "supply either a session token or a username and password, not both"}
	case !hasToken && !hasLogin:
		return &ConfigurationError{Reason: "no credentials: supply a session token or a username and password"}
	case hasToken && strings.TrimSpace(c.Token) == "":
		return &ConfigurationError{Reason: "session token is blank"}
	case hasLogin && c.Username == "":
		return &ConfigurationError{Reason: "password given without a username"}
	case hasLogin && c.Password == "":
		return &ConfigurationError{Reason: "username given without a password"}
	}
	return nil
}
