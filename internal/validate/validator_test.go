package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_RequiredRejectsBlank(t *testing.T) {
	v := New().Required("field", "   ")
	assert.False(t, v.IsValid())
}

func TestValidator_ChainsMultipleFailures(t *testing.T) {
	v := New().Required("a", "").Required("b", "")
	assert.Len(t, v.Errors(), 2)
}

func TestValidator_ErrorReturnsNilWhenValid(t *testing.T) {
	v := New().Required("field", "ok")
	assert.NoError(t, v.Error())
}

func TestJoinCode_AcceptsWellFormedCode(t *testing.T) {
	v := JoinCode("AB12CD")
	assert.True(t, v.IsValid())
}

func TestJoinCode_RejectsLowercase(t *testing.T) {
	v := JoinCode("ab12cd")
	assert.False(t, v.IsValid())
}

func TestJoinCode_RejectsWrongLength(t *testing.T) {
	v := JoinCode("AB12")
	assert.False(t, v.IsValid())
}

func TestNickname_AcceptsLettersNumbersSpaces(t *testing.T) {
	v := Nickname("Player One 42", nil)
	assert.True(t, v.IsValid())
}

func TestNickname_RejectsTooLong(t *testing.T) {
	v := Nickname("this nickname is definitely way too long to be valid", nil)
	assert.False(t, v.IsValid())
}

func TestNickname_RejectsEmpty(t *testing.T) {
	v := Nickname("", nil)
	assert.False(t, v.IsValid())
}

func TestNickname_RejectsSymbols(t *testing.T) {
	v := Nickname("h4x0r!!", nil)
	assert.False(t, v.IsValid())
}

func TestNickname_RejectsProfanityCaseInsensitive(t *testing.T) {
	v := Nickname("SuperAdmin", nil)
	assert.False(t, v.IsValid())
}

func TestNickname_UsesCallerSuppliedProfanityList(t *testing.T) {
	v := Nickname("banana", []string{"banana"})
	assert.False(t, v.IsValid())

	v = Nickname("banana", []string{"apple"})
	assert.True(t, v.IsValid())
}
