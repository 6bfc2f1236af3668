package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMintProducesDistinctTokens(t *testing.T) {
	a := Mint()
	b := Mint()
	require.NotEqual(t, a, b)
}

func TestValidateAcceptsBearerToken(t *testing.T) {
	tok := Mint()
	require.True(t, tok.Validate(tok.BearerHeader()))
}

func TestValidateRejectsWrongToken(t *testing.T) {
	tok := Mint()
	other := Mint()
	require.False(t, tok.Validate(other.BearerHeader()))
}

func TestValidateRejectsMissingPrefix(t *testing.T) {
	tok := Mint()
	require.False(t, tok.Validate(string(tok)))
}

func TestValidateRejectsEmptyHeader(t *testing.T) {
	tok := Mint()
	require.False(t, tok.Validate(""))
}
