package visitors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"folio/internal/visitors"
)

func TestVisitorAlias(t *testing.T) {
	t.Run("same session always gets the same alias", func(t *testing.T) {
		alias1 := visitors.VisitorAlias("s1")
		alias2 := visitors.VisitorAlias("s1")

		assert.Equal(t, alias1, alias2)
		assert.NotEmpty(t, alias1)
	})

	t.Run("alias format is 'Adjective Animal'", func(t *testing.T) {
		for _, id := range []string{"", "s1", "0b7c8a0e-session", "a-very-long-session-token-with-many-characters"} {
			alias := visitors.VisitorAlias(id)
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, alias, "session %q", id)
		}
	})

	t.Run("aliases are spread across combinations", func(t *testing.T) {
		aliases := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			aliases[visitors.VisitorAlias(fmt.Sprintf("session-%d", i))] = true
		}

		assert.Greater(t, len(aliases), 100)
	})
}
