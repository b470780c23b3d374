package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"events", "public.events", "user_events_2024", "V2"}
	for _, ident := range valid {
		assert.NoError(t, validateIdentifier(ident), "identifier %q", ident)
	}

	invalid := []string{"", "events; DROP TABLE users", "events--", "ev ents", `ev"ents`}
	for _, ident := range invalid {
		assert.Error(t, validateIdentifier(ident), "identifier %q", ident)
	}
}
