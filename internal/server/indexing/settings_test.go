package indexing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systemshift/graphdex/internal/server/indexspec"
)

func TestSettingsLookups(t *testing.T) {
	s := mustSettings(t, "people:Person(name),names:Person(name),pets:Pet(name)", true, false)

	assert.True(t, s.HasLabel("Person"))
	assert.False(t, s.HasLabel("Robot"))
	assert.Len(t, s.SpecsFor("Person"), 2)
	assert.Empty(t, s.SpecsFor("Robot"))
	assert.Equal(t, []string{"Person", "Pet"}, s.IndexedLabels())
	assert.True(t, s.IncludeIDField())
	assert.False(t, s.IncludeLabelsField())
}

func TestSettingsDoesNotShareSpec(t *testing.T) {
	spec := indexspec.Spec{"L": {{IndexName: "idx", Properties: []string{"p"}}}}
	s := NewSettings(spec, true, true)

	spec["M"] = []indexspec.Entry{{IndexName: "other"}}
	assert.False(t, s.HasLabel("M"))

	cp := s.Spec()
	cp["N"] = nil
	assert.False(t, s.HasLabel("N"))
}

func TestSettingsConcurrentToggles(t *testing.T) {
	s := mustSettings(t, "idx:L(p)", true, true)
	node := newTestNode(1, "L").with("p", 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			s.SetIncludeIDField(v)
			s.SetIncludeLabelsField(!v)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			BuildDocument(node, []string{"p"}, s)
		}()
	}
	wg.Wait()
}
