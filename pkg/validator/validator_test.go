package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serataFields struct {
	AgeBracket  string `validate:"required,fascia"`
	ArrivalTime string `validate:"required,hhmm"`
	Consent     string `validate:"required"`
}

func TestValidateAgeBracket(t *testing.T) {
	for _, b := range AgeBrackets {
		verr := Validate(context.Background(), serataFields{AgeBracket: b, ArrivalTime: "20:30", Consent: "on"})
		assert.Nil(t, verr, "bracket %q", b)
	}

	verr := Validate(context.Background(), serataFields{AgeBracket: "18-99", ArrivalTime: "20:30", Consent: "on"})
	require.NotNil(t, verr)
	assert.Equal(t, "AgeBracket", verr.Field)
	assert.Equal(t, "fascia", verr.Tag)
}

func TestValidateArrivalTime(t *testing.T) {
	valid := []string{"00:00", "9:30", "20:30", "23:59"}
	for _, v := range valid {
		verr := Validate(context.Background(), serataFields{AgeBracket: "18-21", ArrivalTime: v, Consent: "on"})
		assert.Nil(t, verr, "time %q", v)
	}

	invalid := []string{"24:00", "20:60", "2030", "ore venti", "20:"}
	for _, v := range invalid {
		verr := Validate(context.Background(), serataFields{AgeBracket: "18-21", ArrivalTime: v, Consent: "on"})
		require.NotNil(t, verr, "time %q", v)
		assert.Equal(t, "ArrivalTime", verr.Field)
	}
}

func TestValidateReturnsFirstViolationInFieldOrder(t *testing.T) {
	verr := Validate(context.Background(), serataFields{})
	require.NotNil(t, verr)
	assert.Equal(t, "AgeBracket", verr.Field)
	assert.Equal(t, "required", verr.Tag)
}

func TestValidateMaxLength(t *testing.T) {
	type nameFields struct {
		FirstName string `validate:"required,max=5"`
	}
	verr := Validate(context.Background(), nameFields{FirstName: "troppolungo"})
	require.NotNil(t, verr)
	assert.Equal(t, "max", verr.Tag)
}
