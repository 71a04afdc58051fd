package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUGPhonePattern(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"256772123456", true},
		{"256702123456", true},
		{"0772123456", false},
		{"+256772123456", false},
		{"25677212345", false},
		{"2567721234567", false},
		{"254772123456", false},
		{"256abc123456", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ugPhoneRe.MatchString(tt.phone), tt.phone)
	}
}

func TestSanitizeStruct(t *testing.T) {
	note := "  <i>note</i> "
	in := struct {
		Name string
		Note *string
		Num  int
	}{Name: "  <b>bold</b>  ", Note: &note, Num: 7}

	SanitizeStruct(&in)

	assert.Equal(t, "&lt;b&gt;bold&lt;/b&gt;", in.Name)
	assert.Equal(t, "&lt;i&gt;note&lt;/i&gt;", *in.Note)
	assert.Equal(t, 7, in.Num)
}

func TestSanitizeStruct_NonStructNoop(t *testing.T) {
	s := "  hi  "
	SanitizeStruct(&s)
	assert.Equal(t, "  hi  ", s)
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("100.25")
	assert.NoError(t, err)
	assert.Equal(t, "100.25", d.String())

	_, err = ParseAmount("abc")
	assert.Error(t, err)

	_, err = ParseAmount("")
	assert.Error(t, err)
}
