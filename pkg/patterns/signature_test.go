package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignature(t *testing.T) {
	tests := []struct {
		name     string
		store    string
		supplier string
		expected string
	}{
		{name: "identical", store: "GATES2231", supplier: "GATES2231", expected: SignatureIdentical},
		{name: "dash removed", store: "GAT-2231", supplier: "GAT2231", expected: "remove_dash"},
		{name: "dot removed", store: "GAT.2231", supplier: "GAT2231", expected: "remove_dot"},
		{name: "slash removed", store: "21/3/1", supplier: "2131", expected: "remove_slash"},
		{name: "dash to slash substitution", store: "21-3-1", supplier: "21/3/1", expected: "dash_to_slash"},
		{name: "mixed punctuation collapses", store: "GA-T.2231", supplier: "GAT2231", expected: SignatureStripPunctuation},
		{name: "leading zeros", store: "000211273", supplier: "211273", expected: SignatureLeadingZeros},
		{name: "line code stripped", store: "GAT2231", supplier: "2231", expected: SignatureLineCodeStripped},
		{name: "unrelated numbers", store: "GAT2231", supplier: "DAY5060", expected: SignatureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Signature(tt.store, tt.supplier))
		})
	}
}

func TestSignatureOrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"GAT-2231", "GAT2231"},
		{"21-3-1", "21/3/1"},
		{"000211273", "211273"},
		{"GAT2231", "2231"},
		{"GAT2231", "DAY5060"},
	}
	for _, p := range pairs {
		assert.Equal(t, Signature(p[0], p[1]), Signature(p[1], p[0]), "pair %v", p)
	}
}
