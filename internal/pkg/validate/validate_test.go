package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type request struct {
	Username string `json:"username" validate:"required"`
	Channel  string `json:"channel" validate:"required,channel"`
	Code     string `json:"code" validate:"omitempty,numeric,min=6,max=10"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(request{Username: "u1", Channel: "SMS", Code: "483920"}))
}

func TestStruct_UnknownChannel(t *testing.T) {
	err := Struct(request{Username: "u1", Channel: "fax"})
	assert.EqualError(t, err, "field 'channel' failed 'channel'")
}

func TestStruct_ReportsEveryField(t *testing.T) {
	err := Struct(request{Channel: "email", Code: "12ab"})
	assert.EqualError(t, err, "field 'username' failed 'required'; field 'code' failed 'numeric'")
}
