// Package policy holds the access decision functions the host applies when
// registering components and routing requests. Everything here is pure: no
// I/O, no mutable state, no failure modes. An empty result is a valid
// result; turning "no eligible client" into a caller-facing error is the
// host's job.
package policy

import "harbor/pkg/models"

// IsRegistrationAllowed reports whether a component discovered from a client
// may be registered, given the client's own exclude list.
func IsRegistrationAllowed(name string, clientExcludeList []string) bool {
	for _, excluded := range clientExcludeList {
		if excluded == name {
			return false
		}
	}
	return true
}

// FilterClients narrows candidate client IDs to those the caller's allow
// list permits. A nil allow list means no restriction; otherwise the result
// is the order-preserving intersection of candidates and the allow list.
func FilterClients(candidates []string, callerAllowList []string) []string {
	if callerAllowList == nil {
		return candidates
	}

	allowed := make(map[string]bool, len(callerAllowList))
	for _, id := range callerAllowList {
		allowed[id] = true
	}

	filtered := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if allowed[id] {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// IsComponentAllowedForAgent reports whether a caller may use a component,
// given the caller's exclude list. A nil or empty list excludes nothing.
func IsComponentAllowedForAgent(name string, callerExcludeList []string) bool {
	for _, excluded := range callerExcludeList {
		if excluded == name {
			return false
		}
	}
	return true
}

// FilterComponentList applies both caller-side checks to a catalog before it
// is shown to a caller: components on the caller's exclude list are dropped,
// and components whose owning clients are all outside the caller's allow
// list are dropped. ownersOf reports the registered owners of a component.
func FilterComponentList(components []models.Component, callerPolicy *models.CallerPolicy, ownersOf func(models.ComponentKind, string) []string) []models.Component {
	if callerPolicy == nil {
		return components
	}

	filtered := make([]models.Component, 0, len(components))
	for _, component := range components {
		if !IsComponentAllowedForAgent(component.Name, callerPolicy.ExcludeComponents) {
			continue
		}
		if callerPolicy.AllowClients != nil && ownersOf != nil {
			if len(FilterClients(ownersOf(component.Kind, component.Name), callerPolicy.AllowClients)) == 0 {
				continue
			}
		}
		filtered = append(filtered, component)
	}
	return filtered
}
