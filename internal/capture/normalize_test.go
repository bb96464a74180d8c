package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"José Silva", "JOSE SILVA"},
		{"  JOSE   SILVA ", "JOSE SILVA"},
		{"Conceição\tAraújo", "CONCEICAO ARAUJO"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeName(tc.in), tc.in)
	}
}

func TestNormalizeOAB(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12345BA", NormalizeOAB("12.345/ba"))
	assert.Equal(t, "", NormalizeOAB(" -/ "))
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, ok := ParseRole("réu")
	assert.True(t, ok)
	assert.Equal(t, RoleDefendant, role)

	_, ok = ParseRole("ADVOGADO")
	assert.False(t, ok)
}

func TestDedupeCases(t *testing.T) {
	t.Parallel()

	cases := []CapturedCase{
		{NumeroProcesso: "0001234-56.2024.8.05.0001", Classe: "first"},
		{NumeroProcesso: "00012345620248050001", Classe: "second"},
		{NumeroProcesso: "n/a"},
		{NumeroProcesso: "0009999-11.2023.8.05.0001"},
	}
	out := DedupeCases(cases)
	assert.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Classe)
}

func TestLawyerBarNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12345BA", Lawyer{OABNumero: "12.345", OABUF: "ba"}.BarNumber())
	assert.Empty(t, Lawyer{OABNumero: "12345"}.BarNumber())
}
