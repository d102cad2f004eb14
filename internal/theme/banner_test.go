package theme

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"xnom/internal/model"
)

func TestBannerMentionsName(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "N O M")
}

func TestKVSortsKeys(t *testing.T) {
	out := KV("stats", map[string]string{"zeta": "1", "alpha": "2"})
	assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "zeta"))
}

func TestPriorityKeepsLabel(t *testing.T) {
	assert.Contains(t, Priority(model.PriorityHigh), "high")
	assert.Contains(t, Outcome(false), "failed")
}
