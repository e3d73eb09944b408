package secrets

import (
	"context"
	"os"
	"strconv"
	"sync"

	"harbor/internal/logging"
)

// defaultResolveWorkers bounds how many blocking external lookups run at
// once. Vault and file reads can stall, so they are kept off the spawn path
// behind a small pool.
func defaultResolveWorkers() int {
	if value := os.Getenv("HARBOR_SECRET_WORKERS"); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return 5
}

// ResolveExternalSecrets resolves a batch of named secret references
// ("<scheme>:<path>[#key]") through the registered providers. Lookups run on
// a bounded worker pool; a failing reference is logged and omitted from the
// result, never aborting the rest of the batch. Resolved values are
// registered with the masker before they are returned.
func (s *Store) ResolveExternalSecrets(ctx context.Context, refs map[string]string) map[string]string {
	if len(refs) == 0 {
		return map[string]string{}
	}

	type lookup struct {
		name string
		ref  string
	}
	type outcome struct {
		name  string
		value string
		err   error
	}

	workers := s.workers
	if len(refs) < workers {
		workers = len(refs)
	}

	lookupChan := make(chan lookup, len(refs))
	outcomeChan := make(chan outcome, len(refs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range lookupChan {
				value, err := s.resolveRef(ctx, job.ref)
				outcomeChan <- outcome{name: job.name, value: value, err: err}
			}
		}()
	}

	for name, ref := range refs {
		lookupChan <- lookup{name: name, ref: ref}
	}
	close(lookupChan)

	go func() {
		wg.Wait()
		close(outcomeChan)
	}()

	resolved := make(map[string]string, len(refs))
	for result := range outcomeChan {
		if result.err != nil {
			logging.Error("failed to resolve secret %s: %v", result.name, result.err)
			continue
		}
		s.masker.AddSecret(result.value)
		resolved[result.name] = result.value
	}

	if len(resolved) < len(refs) {
		logging.Warn("resolved %d of %d secret references; the rest were omitted", len(resolved), len(refs))
	}
	return resolved
}

func (s *Store) resolveRef(ctx context.Context, ref string) (string, error) {
	scheme, path, key, err := splitRef(ref)
	if err != nil {
		return "", err
	}

	provider, ok := s.providerFor(scheme)
	if !ok {
		return "", &UnknownSchemeError{Scheme: scheme}
	}
	return provider.GetSecret(ctx, path, key)
}

// UnknownSchemeError reports a secret reference whose scheme has no
// registered provider.
type UnknownSchemeError struct {
	Scheme string
}

func (e *UnknownSchemeError) Error() string {
	return "no secret provider registered for scheme " + e.Scheme
}
