package forms

import (
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const tokenName = "form"

// Tokens signs form-completion links. A token encodes only the submission ID;
// whoever holds the link may submit, which matches how the links travel
// (emailed to the contact). Tokens never expire on their own because overdue
// reminders re-send the same link; the submission status is the gate.
type Tokens struct {
	sc      *securecookie.SecureCookie
	baseURL string
}

func NewTokens(hashKey, blockKey []byte, baseURL string) *Tokens {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(0)
	return &Tokens{sc: sc, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *Tokens) Encode(submissionID uuid.UUID) (string, error) {
	return t.sc.Encode(tokenName, submissionID.String())
}

func (t *Tokens) Decode(token string) (uuid.UUID, error) {
	var raw string
	if err := t.sc.Decode(tokenName, token, &raw); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(raw)
}

// CompletionURL is the absolute link mailed to contacts.
func (t *Tokens) CompletionURL(submissionID uuid.UUID) (string, error) {
	tok, err := t.Encode(submissionID)
	if err != nil {
		return "", err
	}
	return t.baseURL + "/f/" + tok, nil
}
