package sequence

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	code := Format("CMP", "261016", 1)
	require.Regexp(t, regexp.MustCompile(`^CMP-261016-001[A-Z2-9]{2}$`), code)

	code = Format("CMP", "261016", 36*36*36)
	require.Regexp(t, regexp.MustCompile(`^CMP-261016-1000[A-Z2-9]{2}$`), code)
}
