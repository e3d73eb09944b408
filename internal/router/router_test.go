package router

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harbor/pkg/models"
)

func tool(name string) models.Component {
	return models.Component{Kind: models.KindTool, Name: name}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.RegisterClient("weather", models.CapabilityFlags{Tools: true}, 0)
	r.RegisterComponent(tool("lookup"), "weather")

	assert.Equal(t, []string{"weather"}, r.ClientsFor(models.KindTool, "lookup"))
	assert.Empty(t, r.ClientsFor(models.KindTool, "missing"))
	assert.Empty(t, r.ClientsFor(models.KindPrompt, "lookup"), "kind scoping")
	assert.True(t, r.CapabilitiesOf("weather").Tools)
}

func TestRegisterSameTripleTwiceIsNoop(t *testing.T) {
	r := New()
	r.RegisterClient("weather", models.CapabilityFlags{Tools: true}, 0)
	r.RegisterComponent(tool("lookup"), "weather")
	r.RegisterComponent(tool("lookup"), "weather")

	assert.Equal(t, []string{"weather"}, r.ClientsFor(models.KindTool, "lookup"))
	assert.Len(t, r.ComponentsOf("weather"), 1)
}

func TestUnregisterRemovesAllTraces(t *testing.T) {
	r := New()
	r.RegisterClient("weather", models.CapabilityFlags{Tools: true}, 0)
	r.RegisterClient("planning", models.CapabilityFlags{Tools: true}, 0)
	r.RegisterComponent(tool("lookup"), "weather")
	r.RegisterComponent(tool("lookup"), "planning")
	r.RegisterComponent(tool("forecast"), "weather")

	r.UnregisterClient("weather")

	assert.Equal(t, []string{"planning"}, r.ClientsFor(models.KindTool, "lookup"))
	assert.Empty(t, r.ClientsFor(models.KindTool, "forecast"))
	assert.Empty(t, r.ComponentsOf("weather"))
	assert.False(t, r.IsClientRegistered("weather"))
	assert.True(t, r.IsClientRegistered("planning"))

	// Second unregister is a safe no-op.
	r.UnregisterClient("weather")
	assert.Equal(t, []string{"planning"}, r.ClientsFor(models.KindTool, "lookup"))
}

func TestClientsForOrdering(t *testing.T) {
	r := New()
	r.RegisterClient("bravo", models.CapabilityFlags{Tools: true}, 5)
	r.RegisterClient("alpha", models.CapabilityFlags{Tools: true}, 0)
	r.RegisterClient("charlie", models.CapabilityFlags{Tools: true}, 5)
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		r.RegisterComponent(tool("lookup"), id)
	}

	// Descending weight, then ascending client ID.
	assert.Equal(t, []string{"bravo", "charlie", "alpha"}, r.ClientsFor(models.KindTool, "lookup"))
}

func TestClientsForReturnsCopy(t *testing.T) {
	r := New()
	r.RegisterClient("weather", models.CapabilityFlags{Tools: true}, 0)
	r.RegisterComponent(tool("lookup"), "weather")

	got := r.ClientsFor(models.KindTool, "lookup")
	got[0] = "mutated"

	assert.Equal(t, []string{"weather"}, r.ClientsFor(models.KindTool, "lookup"))
}

func TestCatalogMetadataSurvivesSharedOwner(t *testing.T) {
	r := New()
	r.RegisterClient("a", models.CapabilityFlags{Tools: true}, 0)
	r.RegisterClient("b", models.CapabilityFlags{Tools: true}, 0)
	lookup := models.Component{Kind: models.KindTool, Name: "lookup", Description: "find things"}
	r.RegisterComponent(lookup, "a")
	r.RegisterComponent(lookup, "b")

	r.UnregisterClient("a")

	catalog := r.Catalog(models.KindTool)
	require.Len(t, catalog, 1)
	assert.Equal(t, "find things", catalog[0].Description)

	r.UnregisterClient("b")
	assert.Empty(t, r.Catalog(models.KindTool))
}

func TestConcurrentRegisterUnregisterConsistency(t *testing.T) {
	r := New()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", n)
			for iter := 0; iter < 100; iter++ {
				r.RegisterClient(id, models.CapabilityFlags{Tools: true}, n)
				r.RegisterComponent(tool("shared"), id)
				r.RegisterComponent(tool(fmt.Sprintf("own-%d", n)), id)
				r.ClientsFor(models.KindTool, "shared")
				r.UnregisterClient(id)
			}
		}(i)
	}
	wg.Wait()

	// Every client finished with an unregister, so both indices are empty.
	assert.Empty(t, r.ClientsFor(models.KindTool, "shared"))
	for i := 0; i < workers; i++ {
		assert.Empty(t, r.ComponentsOf(fmt.Sprintf("client-%d", i)))
	}
}
