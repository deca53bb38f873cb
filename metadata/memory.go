package metadata

import (
	"context"
	"sort"
	"sync"
	"time"

	digestpkg "github.com/distribution-core/registry/digest"
)

// MemoryIndex is an in-process Index implementation. It is the default
// backend for tests and single-node development and carries no external
// dependency.
type MemoryIndex struct {
	mu sync.RWMutex

	repositories map[string]Repository
	manifests    map[digestpkg.Digest]Manifest
	tags         map[string]map[string]Tag // repo -> tag name -> Tag
	uploads      map[string]UploadSession
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex constructs an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		repositories: make(map[string]Repository),
		manifests:    make(map[digestpkg.Digest]Manifest),
		tags:         make(map[string]map[string]Tag),
		uploads:      make(map[string]UploadSession),
	}
}

func (idx *MemoryIndex) PutRepository(ctx context.Context, name string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.repositories[name]; !ok {
		idx.repositories[name] = Repository{Name: name, CreatedAt: time.Now()}
	}
	return nil
}

func (idx *MemoryIndex) ListRepositories(ctx context.Context, last string, n int) (Page, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	names := make([]string, 0, len(idx.repositories))
	for name := range idx.repositories {
		names = append(names, name)
	}
	sort.Strings(names)

	return paginate(names, last, n), nil
}

func (idx *MemoryIndex) PutManifest(ctx context.Context, m Manifest) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if existing, ok := idx.manifests[m.Digest]; ok {
		// A manifest is written once per digest; keep the original repo
		// and created_at (repo tracks the first repository to store it).
		m.Repo = existing.Repo
		m.CreatedAt = existing.CreatedAt
	}
	idx.manifests[m.Digest] = m

	if _, ok := idx.repositories[m.Repo]; !ok {
		idx.repositories[m.Repo] = Repository{Name: m.Repo, CreatedAt: time.Now()}
	}
	return nil
}

func (idx *MemoryIndex) GetManifest(ctx context.Context, dgst digestpkg.Digest) (Manifest, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	m, ok := idx.manifests[dgst]
	if !ok {
		return Manifest{}, ErrNotFound
	}
	return m, nil
}

func (idx *MemoryIndex) DeleteManifest(ctx context.Context, dgst digestpkg.Digest) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.manifests[dgst]; !ok {
		return ErrNotFound
	}
	delete(idx.manifests, dgst)

	for repo, tagsByName := range idx.tags {
		for name, tag := range tagsByName {
			if tag.ManifestDigest == dgst {
				delete(idx.tags[repo], name)
			}
		}
	}
	return nil
}

func (idx *MemoryIndex) PutTag(ctx context.Context, repo, tag string, dgst digestpkg.Digest) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.manifests[dgst]; !ok {
		return ErrManifestUnknown{Digest: dgst}
	}

	if _, ok := idx.repositories[repo]; !ok {
		idx.repositories[repo] = Repository{Name: repo, CreatedAt: time.Now()}
	}
	if idx.tags[repo] == nil {
		idx.tags[repo] = make(map[string]Tag)
	}
	idx.tags[repo][tag] = Tag{Repo: repo, Name: tag, ManifestDigest: dgst, UpdatedAt: time.Now()}
	return nil
}

func (idx *MemoryIndex) GetTag(ctx context.Context, repo, tag string) (digestpkg.Digest, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byName, ok := idx.tags[repo]
	if !ok {
		return "", ErrNotFound
	}
	t, ok := byName[tag]
	if !ok {
		return "", ErrNotFound
	}
	return t.ManifestDigest, nil
}

func (idx *MemoryIndex) DeleteTag(ctx context.Context, repo, tag string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	byName, ok := idx.tags[repo]
	if !ok {
		return ErrNotFound
	}
	if _, ok := byName[tag]; !ok {
		return ErrNotFound
	}
	delete(byName, tag)
	return nil
}

func (idx *MemoryIndex) ListTags(ctx context.Context, repo, last string, n int) (Page, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byName := idx.tags[repo]
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return paginate(names, last, n), nil
}

func (idx *MemoryIndex) CreateUploadSession(ctx context.Context, s UploadSession) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.uploads[s.ID] = s
	return nil
}

func (idx *MemoryIndex) TouchUploadSession(ctx context.Context, id string, length int64, at time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s, ok := idx.uploads[id]
	if !ok {
		return ErrNotFound
	}
	s.Length = length
	s.LastActivityAt = at
	idx.uploads[id] = s
	return nil
}

func (idx *MemoryIndex) DeleteUploadSession(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.uploads[id]; !ok {
		return ErrNotFound
	}
	delete(idx.uploads, id)
	return nil
}

func (idx *MemoryIndex) ExpiredUploadSessions(ctx context.Context, olderThan time.Time) ([]UploadSession, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []UploadSession
	for _, s := range idx.uploads {
		if s.LastActivityAt.Before(olderThan) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (idx *MemoryIndex) ReachableManifestDigests(ctx context.Context) (map[digestpkg.Digest]struct{}, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	roots := make(map[digestpkg.Digest]struct{})
	for _, byName := range idx.tags {
		for _, tag := range byName {
			roots[tag.ManifestDigest] = struct{}{}
		}
	}

	reachable := make(map[digestpkg.Digest]struct{})
	var visit func(digestpkg.Digest)
	visit = func(d digestpkg.Digest) {
		if _, seen := reachable[d]; seen {
			return
		}
		reachable[d] = struct{}{}
		m, ok := idx.manifests[d]
		if !ok {
			return
		}
		for _, ref := range m.References {
			if _, ok := idx.manifests[ref]; ok {
				visit(ref)
			}
		}
	}
	for root := range roots {
		visit(root)
	}

	return reachable, nil
}

func (idx *MemoryIndex) AllReferencedDigests(ctx context.Context) (map[digestpkg.Digest]struct{}, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[digestpkg.Digest]struct{})
	for dgst, m := range idx.manifests {
		out[dgst] = struct{}{}
		for _, ref := range m.References {
			out[ref] = struct{}{}
		}
	}
	return out, nil
}

func (idx *MemoryIndex) Close() error { return nil }

// paginate returns the page of names strictly after last, up to n entries
// (or all remaining entries if n <= 0), matching the Distribution spec's
// keyset ?n=&last= convention.
func paginate(names []string, last string, n int) Page {
	start := 0
	if last != "" {
		start = sort.SearchStrings(names, last)
		if start < len(names) && names[start] == last {
			start++
		}
	}

	if start >= len(names) {
		return Page{}
	}

	remaining := names[start:]
	if n <= 0 || n >= len(remaining) {
		return Page{Names: remaining, More: false}
	}

	return Page{Names: remaining[:n], More: true}
}
